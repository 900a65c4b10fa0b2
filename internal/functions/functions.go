// Package functions implements the backend functions the document
// connector calls: get_files and download_file, both backed by AFAS.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/afas"
	"github.com/fruitsalade/docconnector/internal/config"
	"github.com/fruitsalade/docconnector/internal/hostctx"
	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/metrics"
	"github.com/fruitsalade/docconnector/internal/protocol"
)

// ErrUnknownFunction is returned by Invoke for names it does not serve.
var ErrUnknownFunction = errors.New("unknown function")

// ErrBadPayload is returned by Invoke when the payload cannot be decoded.
var ErrBadPayload = errors.New("bad payload")

const genericError = "Something went wrong"

// AFAS GetConnector field names.
const (
	fieldProject     = "Project"
	fieldDossierItem = "Dossieritem"
	fieldName        = "Naam"
	fieldAttachment  = "Bijlage"
)

type function func(ctx context.Context, res *hostctx.Resource, payload json.RawMessage) (any, error)

// Service serves the backend functions for one deployment configuration.
type Service struct {
	cfg        config.Functions
	afas       *afas.Client
	httpClient *http.Client
	now        func() time.Time
	registry   map[string]function
}

// New creates the service.
func New(cfg config.Functions, timeout time.Duration) *Service {
	s := &Service{
		cfg: cfg,
		afas: afas.New(afas.Config{
			EnvironmentID: cfg.EnvironmentID,
			Token:         cfg.Token,
			BaseURL:       cfg.AFASBaseURL,
			Timeout:       timeout,
		}),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	s.registry = map[string]function{
		protocol.FunctionGetFiles:     s.getFiles,
		protocol.FunctionDownloadFile: s.downloadFile,
	}
	return s
}

// Invoke runs the named function for the agent/asset in claims. The result
// is what the function returns to the caller, which may be an ErrorResult.
func (s *Service) Invoke(ctx context.Context, name string, claims *hostctx.Claims, payload json.RawMessage) (any, error) {
	fn, ok := s.registry[name]
	if !ok {
		metrics.RecordFunctionCall(name, "unknown")
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	var res *hostctx.Resource
	if claims != nil {
		res = claims.AgentOrAsset()
	}

	result, err := fn(ctx, res, payload)
	if err != nil {
		metrics.RecordFunctionCall(name, "bad_payload")
		return nil, err
	}

	label := "ok"
	if _, isErr := result.(protocol.ErrorResult); isErr {
		label = "error_result"
	}
	metrics.RecordFunctionCall(name, label)
	return result, nil
}

// checkErrorConditions returns the first missing setting, in a fixed order.
func (s *Service) checkErrorConditions(res *hostctx.Resource) (protocol.ErrorResult, bool) {
	switch {
	case s.cfg.Token == "":
		return protocol.ErrorResult{Error: "No token found"}, false
	case s.cfg.EnvironmentID == "" && s.cfg.AFASBaseURL == "":
		return protocol.ErrorResult{Error: "No environment id found"}, false
	case s.cfg.DossierPerProjectConnector == "":
		return protocol.ErrorResult{Error: "No dossier_per_project_connector found"}, false
	case s.cfg.FilesPerDossierConnector == "":
		return protocol.ErrorResult{Error: "No files_per_dossier_connector found"}, false
	case s.projectID(res) == "":
		return protocol.ErrorResult{Error: "No serial number found"}, false
	}
	return protocol.ErrorResult{}, true
}

// projectID reads the project id from the resource's custom property.
func (s *Service) projectID(res *hostctx.Resource) string {
	if res == nil || s.cfg.ProjectIDCustomFieldID == "" {
		return ""
	}
	return res.CustomProperties[s.cfg.ProjectIDCustomFieldID]
}

func (s *Service) getFiles(ctx context.Context, res *hostctx.Resource, _ json.RawMessage) (any, error) {
	if errResult, ok := s.checkErrorConditions(res); !ok {
		return errResult, nil
	}
	projectID := s.projectID(res)
	log := logging.WithContext(ctx).With(zap.String("project_id", projectID))

	dossierRows, err := s.afas.Rows(ctx, s.cfg.DossierPerProjectConnector)
	if err != nil {
		log.Warn("reading dossiers failed", zap.Error(err))
		return protocol.ErrorResult{Error: genericError}, nil
	}
	var dossierItems []string
	for _, row := range afas.FilterEq(dossierRows, fieldProject, projectID) {
		dossierItems = append(dossierItems, row.Value(fieldDossierItem))
	}

	fileRows, err := s.afas.Rows(ctx, s.cfg.FilesPerDossierConnector)
	if err != nil {
		log.Warn("reading dossier files failed", zap.Error(err))
		return protocol.ErrorResult{Error: genericError}, nil
	}

	files := []protocol.FileEntry{}
	for _, row := range afas.FilterIn(fileRows, fieldDossierItem, dossierItems) {
		files = append(files, protocol.FileEntry{
			Name: row.Value(fieldName),
			ID:   row.Value(fieldAttachment),
		})
	}

	log.Debug("files listed", zap.Int("dossier_items", len(dossierItems)), zap.Int("files", len(files)))
	return files, nil
}

func (s *Service) downloadFile(ctx context.Context, res *hostctx.Resource, payload json.RawMessage) (any, error) {
	var req protocol.DownloadRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}

	if s.cfg.ZapierWebhookURL != "" {
		s.notifyDownload(ctx, res, req)
	}

	if errResult, ok := s.checkErrorConditions(res); !ok {
		return errResult, nil
	}

	att, err := s.afas.Download(ctx, req.FileID, req.FileName)
	if err != nil {
		logging.WithContext(ctx).Warn("attachment download failed",
			zap.String("file_id", req.FileID), zap.Error(err))
		return protocol.ErrorResult{Error: genericError}, nil
	}

	return protocol.DownloadResult{
		FileName: att.FileName,
		PDFFile:  "data:" + att.MimeType + ";base64," + att.FileData,
	}, nil
}

// notifyDownload posts a download notification to the configured webhook.
// Failures are logged and never block the download.
func (s *Service) notifyDownload(ctx context.Context, res *hostctx.Resource, req protocol.DownloadRequest) {
	name := ""
	if res != nil {
		name = res.Name
	}
	form := url.Values{
		"agent_or_asset": {name},
		"file_id":        {req.FileID},
		"file_name":      {req.FileName},
		"utc_time":       {s.now().UTC().Format("2006-01-02T15:04:05")},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ZapierWebhookURL, strings.NewReader(form.Encode()))
	if err != nil {
		metrics.RecordWebhookPost(false)
		logging.Warn("build webhook request", zap.Error(err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordWebhookPost(false)
		logging.WithContext(ctx).Warn("download webhook failed", zap.Error(err))
		return
	}
	resp.Body.Close()
	ok := resp.StatusCode < 300
	metrics.RecordWebhookPost(ok)
	if !ok {
		logging.WithContext(ctx).Warn("download webhook rejected", zap.Int("status", resp.StatusCode))
	}
}

// Names returns the served function names.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.registry))
	for n := range s.registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
