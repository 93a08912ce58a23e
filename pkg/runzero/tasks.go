package runzero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// TaskFilter narrows a task listing. Empty fields are not sent.
type TaskFilter struct {
	Search string
	Status string
}

func (f TaskFilter) values() url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Status != "" {
		v.Set("status", f.Status)
	}
	return v
}

// Tasks lists organization tasks, most recent first.
func (c *Client) Tasks(ctx context.Context, f TaskFilter) ([]record.Record, error) {
	return c.getRecords(ctx, "org_tasks", "/org/tasks", f.values())
}

// Task fetches a single task, including its scan parameters.
func (c *Client) Task(ctx context.Context, taskID string) (record.Record, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, fmt.Errorf("task id %q: %w", taskID, err)
	}
	endpoint := c.endpoint("/org/tasks/" + taskID)
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, "org_task")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, endpoint)
	}
	var out record.Record
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &DecodeError{URL: endpoint, Err: err}
	}
	return out, nil
}

// DownloadTaskData streams the gzip scan data of a task into w.
func (c *Client) DownloadTaskData(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return 0, fmt.Errorf("task id %q: %w", taskID, err)
	}
	endpoint := c.endpoint("/org/tasks/" + taskID + "/data")
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, "task_data")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp, endpoint)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("copy task %s data: %w", taskID, err)
	}
	return n, nil
}
