package receipt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMIMEType = "application/vnd.google-apps.folder"

// DriveArchive implements Archive in a Google Drive folder. Receipts go into
// a child folder named after the upload day (DD/MM/YYYY), created on demand.
type DriveArchive struct {
	files    *drive.FilesService
	rootID   string
	mu       sync.Mutex
	folderID map[string]string
}

// NewDriveArchive connects to Drive. opts carry credentials, for example
// option.WithCredentialsFile for a service account.
func NewDriveArchive(ctx context.Context, rootFolderID string, opts ...option.ClientOption) (*DriveArchive, error) {
	if rootFolderID == "" {
		return nil, fmt.Errorf("drive root folder id is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	return &DriveArchive{
		files:    svc.Files,
		rootID:   rootFolderID,
		folderID: make(map[string]string),
	}, nil
}

// Save uploads data into the day folder and returns the Drive file id
func (d *DriveArchive) Save(ctx context.Context, name string, data []byte, mimeType string, day time.Time) (string, error) {
	folderID, err := d.dayFolder(ctx, day.Format("02/01/2006"))
	if err != nil {
		return "", err
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	f, err := d.files.Create(&drive.File{Name: name, Parents: []string{folderID}, MimeType: mimeType}).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	return f.Id, nil
}

func (d *DriveArchive) dayFolder(ctx context.Context, folderName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.folderID[folderName]; ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(folderName), escapeQuery(d.rootID), folderMIMEType)
	list, err := d.files.List().
		Q(q).
		Spaces("drive").
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("finding folder %s: %w", folderName, err)
	}

	var id string
	if len(list.Files) > 0 {
		id = list.Files[0].Id
	} else {
		folder, err := d.files.Create(&drive.File{Name: folderName, MimeType: folderMIMEType, Parents: []string{d.rootID}}).
			Fields("id").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("creating folder %s: %w", folderName, err)
		}
		id = folder.Id
	}

	d.folderID[folderName] = id
	return id, nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
