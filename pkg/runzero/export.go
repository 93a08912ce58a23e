package runzero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// ExportAssets returns every asset matching q from the export endpoint.
func (c *Client) ExportAssets(ctx context.Context, q query.Query) ([]record.Record, error) {
	return c.getRecords(ctx, "export_assets", "/export/org/assets.json", q.Values())
}

// ExportVulnerabilities returns every vulnerability matching q.
func (c *Client) ExportVulnerabilities(ctx context.Context, q query.Query) ([]record.Record, error) {
	return c.getRecords(ctx, "export_vulnerabilities", "/export/org/vulnerabilities.json", q.Values())
}

// SearchAssets queries the organization asset inventory.
func (c *Client) SearchAssets(ctx context.Context, search string) ([]record.Record, error) {
	params := url.Values{}
	params.Set("search", search)
	return c.getRecords(ctx, "org_assets", "/org/assets", params)
}

// Orgs lists the organizations visible to an account key.
func (c *Client) Orgs(ctx context.Context) ([]record.Record, error) {
	return c.getRecords(ctx, "account_orgs", "/account/orgs", nil)
}

// SetOwner assigns an owner to an asset under an ownership type.
func (c *Client) SetOwner(ctx context.Context, assetID, ownershipTypeID, owner string) (record.Record, error) {
	if _, err := uuid.Parse(assetID); err != nil {
		return nil, fmt.Errorf("asset id %q: %w", assetID, err)
	}
	if _, err := uuid.Parse(ownershipTypeID); err != nil {
		return nil, fmt.Errorf("ownership type %q: %w", ownershipTypeID, err)
	}
	payload := map[string]interface{}{
		"ownerships": []map[string]string{{"ownership_type_id": ownershipTypeID, "owner": owner}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := c.endpoint("/org/assets/" + assetID + "/owners")
	req, err := c.newRequest(ctx, http.MethodPatch, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req, "asset_owners")
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
