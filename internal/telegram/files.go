package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"
)

// 20 MB is the Bot API's own getFile ceiling.
const maxFileSize = 20 << 20

type getFileRequest struct {
	FileID string `json:"file_id"`
}

type getFileResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Result      *struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
		FileSize int64  `json:"file_size"`
	} `json:"result,omitempty"`
}

// DownloadFile resolves a file_id via getFile and fetches its content.
// The second return value is the server-side file name, useful for guessing
// the format.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	payload, err := json.Marshal(getFileRequest{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("marshal getFile payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/getFile", c.APIURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("getFile: %w", err)
	}
	defer resp.Body.Close()

	var parsed getFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("getFile: bad status %s", resp.Status)
	}
	if !parsed.OK || parsed.Result == nil {
		return nil, "", fmt.Errorf("getFile: api error: %s", parsed.Description)
	}
	if parsed.Result.FileSize > maxFileSize {
		return nil, "", fmt.Errorf("file %s is too large (%d bytes)", fileID, parsed.Result.FileSize)
	}

	filePath := parsed.Result.FilePath
	c.logger.Debug("downloading telegram file",
		zap.String("file_id", fileID),
		zap.String("file_path", filePath),
	)

	data, err := c.fetchFile(ctx, filePath)
	if err != nil {
		return nil, "", err
	}
	return data, path.Base(filePath), nil
}

func (c *Client) fetchFile(ctx context.Context, filePath string) ([]byte, error) {
	url := fmt.Sprintf("%s/file/bot%s/%s", c.APIURL, c.token, strings.TrimPrefix(filePath, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", filePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: bad status %s", filePath, resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
}
