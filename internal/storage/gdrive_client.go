package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

const folderMime = "application/vnd.google-apps.folder"

// ErrNoToken is returned when no cached token exists and no prompt is available
var ErrNoToken = errors.New("no cached google drive token")

// DriveClient uploads transcripts to Google Drive
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
	now        func() time.Time

	// folder lookups are not atomic on Drive's side
	mu sync.Mutex
}

// Prompt asks the user to authorise the app; nil means non-interactive
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// NewDriveClient creates a Drive client from an OAuth client file and a
// cached token. Without a cached token the authorisation URL is printed to
// prompt.Out and the code read from prompt.In.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string, prompt *Prompt) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		if prompt == nil {
			return nil, fmt.Errorf("%w at %s", ErrNoToken, tokenFile)
		}
		if tok, err = getTokenFromWeb(ctx, config, prompt); err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}

	return NewDriveClientWithOptions(ctx, folderName, option.WithHTTPClient(config.Client(ctx, tok)))
}

// NewDriveClientWithOptions creates a Drive client from raw client options
func NewDriveClientWithOptions(ctx context.Context, folderName string, opts ...option.ClientOption) (*DriveClient, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
		now:        time.Now,
	}

	// Find or create the root folder
	if dc.folderID, err = dc.findOrCreateFolder(ctx, folderName, ""); err != nil {
		return nil, fmt.Errorf("unable to prepare folder %s: %w", folderName, err)
	}
	return dc, nil
}

// getTokenFromWeb runs the copy-paste authorisation code flow
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, prompt *Prompt) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt.Out, "Go to the following link in your browser:\n%v\n", authURL)
	fmt.Fprint(prompt.Out, "Enter authorization code: ")

	code, err := bufio.NewReader(prompt.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("no authorization code given")
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Name implements pipeline.Exporter
func (dc *DriveClient) Name() string {
	return "gdrive"
}

// Export implements pipeline.Exporter
func (dc *DriveClient) Export(ctx context.Context, run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord) error {
	_, err := dc.Upload(ctx, run, res, recs)
	return err
}

// Upload stores the transcript and metadata under <folder>/YYYY/MM/DD and
// returns a link to the metadata file.
func (dc *DriveClient) Upload(ctx context.Context, run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord) (string, error) {
	now := dc.now()
	folderID, err := dc.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	t, err := newTranscript(now, run, res, recs, "")
	if err != nil {
		return "", err
	}

	txtFile := &drive.File{
		Name:    t.base + ".txt",
		Parents: []string{folderID},
	}
	if _, err := dc.service.Files.Create(txtFile).Media(bytes.NewReader(t.text)).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	metaFile := &drive.File{
		Name:    t.base + "_meta.json",
		Parents: []string{folderID},
	}
	createdMeta, err := dc.service.Files.Create(metaFile).Media(bytes.NewReader(t.meta)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", createdMeta.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	parent := dc.folderID
	for _, name := range datePath(t) {
		id, err := dc.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", fmt.Errorf("unable to prepare folder %s: %w", name, err)
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder; an empty parentID means the Drive root
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMime)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMime,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
