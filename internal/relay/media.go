package relay

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/inaiurai/relay/internal/models"
)

// DefaultMaxMediaBytes bounds a single inbound blob.
const DefaultMaxMediaBytes = 5 << 20

var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// MediaBlob is one attachment as delivered by the transport.
type MediaBlob struct {
	FileID string `json:"file_id"`
	Data   []byte `json:"data"`
}

// sniff returns the detected MIME type of blob and whether it may be
// forwarded upstream.
func (s *service) sniff(blob MediaBlob) (string, bool) {
	if len(blob.Data) == 0 || int64(len(blob.Data)) > s.cfg.MaxMediaBytes {
		return "", false
	}
	mt := mimetype.Detect(blob.Data)
	for m := mt; m != nil; m = m.Parent() {
		if allowedMIMETypes[m.String()] {
			return m.String(), true
		}
	}
	return mt.String(), false
}

// storeMedia writes an accepted blob below the media directory and records
// it. With no media directory configured only the reference is stored.
func (s *service) storeMedia(ctx context.Context, accountID string, blob MediaBlob, mime string) (*models.MediaRef, error) {
	ref := &models.MediaRef{
		ID:        uuid.New(),
		AccountID: accountID,
		FileID:    blob.FileID,
		MIMEType:  mime,
		Size:      int64(len(blob.Data)),
		CreatedAt: s.now(),
	}
	if s.cfg.MediaDir != "" {
		dir, err := accountMediaDir(s.cfg.MediaDir, accountID)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
		ref.Path = filepath.Join(dir, ref.ID.String()+extension(mime))
		if err := os.WriteFile(ref.Path, blob.Data, 0o640); err != nil {
			return nil, fmt.Errorf("write media: %w", err)
		}
	}
	if err := s.store.InsertMedia(ctx, ref); err != nil {
		if ref.Path != "" {
			os.Remove(ref.Path)
		}
		return nil, err
	}
	return ref, nil
}

// accountMediaDir names the account's directory below root. Ids made only of
// letters, digits, '-' and '_' are used as is; any other id is hex encoded
// behind a '~', which plain ids cannot contain.
func accountMediaDir(root, accountID string) (string, error) {
	name := accountID
	for _, r := range accountID {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			name = "~" + hex.EncodeToString([]byte(accountID))
			break
		}
	}
	root = filepath.Clean(root)
	dir := filepath.Join(root, name)
	if rel, err := filepath.Rel(root, dir); err != nil || rel != name {
		return "", fmt.Errorf("media dir for account %q escapes %s", accountID, root)
	}
	return dir, nil
}

func extension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}
