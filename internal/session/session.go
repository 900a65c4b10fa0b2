// Package session owns the state of one document connector session: the
// resolved agent/asset names, the file listing and the download workflow.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/datauri"
	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/metrics"
	"github.com/fruitsalade/docconnector/internal/protocol"
	"github.com/fruitsalade/docconnector/internal/resolver"
	"github.com/fruitsalade/docconnector/internal/state"
)

// FileRecord is one entry of the file listing. Deleting is never set; it
// exists so the listing keeps the shape renderers expect.
type FileRecord struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Deleting    bool   `json:"deleting"`
	Downloading bool   `json:"downloading"`
}

// BackendCaller invokes a backend function by name.
type BackendCaller interface {
	Call(ctx context.Context, operation string, payload any) (*protocol.CallResponse, error)
}

// Saver hands decoded file content to wherever the user's files go.
type Saver interface {
	SaveAsFile(ctx context.Context, data []byte, suggestedName string) error
}

// NameResolver resolves a resource selector to a display name.
type NameResolver interface {
	Resolve(ctx context.Context, selector string) (string, resolver.Outcome)
}

// DownloadOutcome says how a DownloadFile call ended.
type DownloadOutcome string

const (
	// Saved means the file was decoded and handed to the Saver.
	Saved DownloadOutcome = "saved"
	// Refreshed means the backend had no usable payload and the listing
	// was fetched again.
	Refreshed DownloadOutcome = "refreshed"
	// Failed means the call or the save failed; the listing is unchanged.
	Failed DownloadOutcome = "failed"
)

// Manager drives a session. Its stores are the only state a view needs.
type Manager struct {
	backend BackendCaller
	names   NameResolver
	saver   Saver

	Files   *state.Store[[]FileRecord]
	Agent   *state.Store[string]
	Asset   *state.Store[string]
	Loading *state.Store[bool]
}

// New creates a session manager with empty stores and loading set.
func New(backend BackendCaller, names NameResolver, saver Saver) *Manager {
	return &Manager{
		backend: backend,
		names:   names,
		saver:   saver,
		Files:   state.New([]FileRecord{}),
		Agent:   state.New(""),
		Asset:   state.New(""),
		Loading: state.New(true),
	}
}

// Init resolves the agent and asset names, one after the other, and then
// lists the files.
func (m *Manager) Init(ctx context.Context) {
	m.Loading.Set(true)

	agent, _ := m.names.Resolve(ctx, protocol.SelectorAgent)
	m.Agent.Set(agent)

	asset, _ := m.names.Resolve(ctx, protocol.SelectorAsset)
	m.Asset.Set(asset)

	m.ListFiles(ctx)
}

// ListFiles replaces the listing with the backend's current file set. Any
// failure publishes an empty listing.
func (m *Manager) ListFiles(ctx context.Context) {
	m.Loading.Set(true)
	defer m.Loading.Set(false)

	files, err := m.fetchFiles(ctx)
	if err != nil {
		logging.Warn("listing files failed", zap.Error(err))
		files = []FileRecord{}
	}

	m.Files.Set(files)
	metrics.SetFilesListed(len(files))
}

func (m *Manager) fetchFiles(ctx context.Context) ([]FileRecord, error) {
	resp, err := m.backend.Call(ctx, protocol.FunctionGetFiles, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", protocol.FunctionGetFiles, err)
	}
	if resp.HasError() {
		return nil, fmt.Errorf("%s returned an error result: %s", protocol.FunctionGetFiles, resp.Data)
	}

	var entries []protocol.FileEntry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", protocol.FunctionGetFiles, err)
	}

	files := make([]FileRecord, 0, len(entries))
	for _, e := range entries {
		files = append(files, FileRecord{Name: e.Name, ID: e.ID})
	}
	return files, nil
}

// DownloadFile downloads record and saves it. The record's Downloading flag
// is published as set for the duration of the call and cleared on return.
func (m *Manager) DownloadFile(ctx context.Context, record FileRecord) DownloadOutcome {
	m.setDownloading(record.ID, true)
	defer m.setDownloading(record.ID, false)

	outcome, size := m.download(ctx, record)
	metrics.RecordDownload(string(outcome), size)
	return outcome
}

func (m *Manager) download(ctx context.Context, record FileRecord) (DownloadOutcome, int) {
	log := logging.WithContext(ctx).With(zap.String("file_id", record.ID), zap.String("file_name", record.Name))

	resp, err := m.backend.Call(ctx, protocol.FunctionDownloadFile, protocol.DownloadRequest{
		FileName: record.Name,
		FileID:   record.ID,
	})
	if err != nil {
		log.Warn("download call failed", zap.Error(err))
		return Failed, 0
	}

	var result protocol.DownloadResult
	if !resp.HasError() {
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			log.Debug("download result not decodable", zap.Error(err))
		}
	}

	if result.FileName == "" || result.PDFFile == "" {
		log.Info("file no longer available, refreshing listing")
		m.ListFiles(ctx)
		return Refreshed, 0
	}

	data, _, err := datauri.Decode(result.PDFFile)
	if err != nil {
		log.Warn("download payload malformed, refreshing listing", zap.Error(err))
		m.ListFiles(ctx)
		return Refreshed, 0
	}

	if err := m.saver.SaveAsFile(ctx, data, result.FileName); err != nil {
		log.Error("save file failed", zap.Error(err))
		return Failed, 0
	}

	log.Debug("file saved", zap.String("saved_as", result.FileName), zap.Int("size", len(data)))
	return Saved, len(data)
}

// setDownloading publishes a new listing in which the record with id has
// its Downloading flag set to v. Other records are copied unchanged.
func (m *Manager) setDownloading(id string, v bool) {
	m.Files.Update(func(files []FileRecord) []FileRecord {
		next := make([]FileRecord, len(files))
		copy(next, files)
		for i := range next {
			if next[i].ID == id {
				next[i].Downloading = v
			}
		}
		return next
	})
}

// Find returns the record with the given id from the current listing.
func (m *Manager) Find(id string) (FileRecord, bool) {
	for _, f := range m.Files.Get() {
		if f.ID == id {
			return f, true
		}
	}
	return FileRecord{}, false
}
