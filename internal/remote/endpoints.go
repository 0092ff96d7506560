package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/xelth-com/claimsync/internal/models"
)

// ResourcePath returns the collection path of an entity on the backend.
// Claim-scoped entities live under their claim.
func ResourcePath(entity models.EntityType, claimID string) (string, error) {
	claim := "/api/claims/" + url.PathEscape(claimID)
	switch entity {
	case models.EntityClaim:
		return "/api/claims", nil
	case models.EntityZone:
		return claim + "/zones", nil
	case models.EntityDamageMarker:
		return claim + "/damage-markers", nil
	case models.EntityLineItem:
		return claim + "/line-items", nil
	case models.EntityPhoto:
		return claim + "/photos", nil
	}
	return "", fmt.Errorf("no remote resource for entity %q", entity)
}

// ItemPath returns the path of one entity on the backend
func ItemPath(entity models.EntityType, claimID, id string) (string, error) {
	base, err := ResourcePath(entity, claimID)
	if err != nil {
		return "", err
	}
	return base + "/" + url.PathEscape(id), nil
}

func movementPath(claimID, movementID, action string) string {
	return fmt.Sprintf("/api/claims/%s/flow/movements/%s/%s",
		url.PathEscape(claimID), url.PathEscape(movementID), action)
}

// UploadResult is the backend's answer to a photo upload
type UploadResult struct {
	ID string `json:"id"`
}

// Upload describes one multipart photo upload
type Upload struct {
	ClaimID     string
	PhotoID     string
	Filename    string
	ContentType string
	Metadata    []byte
	Blob        []byte
}

// UploadPhoto sends the blob as multipart/form-data. progress receives the
// percentage of the request body written so far and always ends at 100 on
// success.
func (c *Client) UploadPhoto(ctx context.Context, up Upload, progress func(percent int)) (*UploadResult, error) {
	body, contentType, err := buildMultipart(up)
	if err != nil {
		return nil, err
	}

	path, err := ResourcePath(models.EntityPhoto, up.ClaimID)
	if err != nil {
		return nil, err
	}
	total := int64(body.Len())
	req, err := c.newRequest(ctx, http.MethodPost, path, &progressReader{r: body, total: total, fn: progress})
	if err != nil {
		return nil, err
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)

	var result UploadResult
	if err := c.send(req, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("upload of photo %s returned no id", up.PhotoID)
	}
	if progress != nil {
		progress(100)
	}
	return &result, nil
}

func buildMultipart(up Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("id", up.PhotoID); err != nil {
		return nil, "", fmt.Errorf("failed to write id field: %w", err)
	}
	if len(up.Metadata) > 0 {
		if err := w.WriteField("metadata", string(up.Metadata)); err != nil {
			return nil, "", fmt.Errorf("failed to write metadata field: %w", err)
		}
	}

	filename := up.Filename
	if filename == "" {
		filename = up.PhotoID + ".jpg"
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(up.Blob); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// progressReader reports read progress in whole percent steps
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.fn != nil && p.total > 0 {
		// 100 is reported only once the server confirmed
		pct := int(p.read * 99 / p.total)
		if pct > p.last {
			p.last = pct
			p.fn(pct)
		}
	}
	return n, err
}

// AttachMovementEvidence links an uploaded photo to a flow movement
func (c *Client) AttachMovementEvidence(ctx context.Context, claimID, movementID, remotePhotoID string) error {
	body := map[string]string{"photoId": remotePhotoID}
	return c.DoJSON(ctx, http.MethodPost, movementPath(claimID, movementID, "evidence"), body, nil)
}

// UpdateFlow sends the current movement and progress of a claim's flow and
// returns the server's flow snapshot
func (c *Client) UpdateFlow(ctx context.Context, claimID string, payload []byte) (*models.FlowSnapshot, error) {
	var snap *models.FlowSnapshot
	path := fmt.Sprintf("/api/claims/%s/flow", url.PathEscape(claimID))
	if err := c.DoJSON(ctx, http.MethodPut, path, payload, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// CompleteMovement posts a step completion and returns the server's flow
// snapshot. The snapshot is nil when the backend answers without a body.
func (c *Client) CompleteMovement(ctx context.Context, claimID, movementID string, payload []byte) (*models.FlowSnapshot, error) {
	var snap *models.FlowSnapshot
	if err := c.DoJSON(ctx, http.MethodPost, movementPath(claimID, movementID, "complete"), payload, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}
