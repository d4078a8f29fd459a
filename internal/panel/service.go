package panel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"panelmerge/internal/audit"
	"panelmerge/pkg/platform/sentinel"
)

// UploadChecker is the slice of the security monitor the panel service
// needs: vetting uploaded files before they are parsed.
type UploadChecker interface {
	CheckUpload(ctx context.Context, filename string, content []byte) bool
	LogDataAccess(ctx context.Context, dataType string, recordCount int, sensitive bool)
}

// ErrUploadRejected is returned when an uploaded file fails the safety
// check. The rejection has already been audited by the monitor.
var ErrUploadRejected = errors.New("upload rejected")

// ErrMergeSourceCount is returned when a merge names fewer than two panels.
var ErrMergeSourceCount = errors.New("merge requires at least two source panels")

// Service owns panel operations and their audit trail. Every mutation
// writes one audit event with before/after snapshots.
type Service struct {
	store   Store
	auditor *audit.Service
	checker UploadChecker
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes the panel service.
type Option func(*Service)

// WithClock overrides the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs the panel service.
func NewService(store Store, auditor *audit.Service, checker UploadChecker, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("panel store is required")
	}
	if auditor == nil {
		return nil, errors.New("audit service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:   store,
		auditor: auditor,
		checker: checker,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// List returns all panels. Large result sets are compliance-logged.
func (s *Service) List(ctx context.Context) ([]*Panel, error) {
	panels, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.checker != nil {
		s.checker.LogDataAccess(ctx, "panel", len(panels), false)
	}
	return panels, nil
}

// Get returns one panel and audits the view.
func (s *Service) Get(ctx context.Context, id string) (*Panel, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.auditor.LogPanelChange(ctx, audit.ActionPanelView, id, nil, nil)
	return p, nil
}

// Create stores a new panel at version 1.
func (s *Service) Create(ctx context.Context, name, description string, genes []Gene) (*Panel, error) {
	if name == "" {
		return nil, errors.New("panel name is required")
	}

	now := s.now()
	p := &Panel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Version:     1,
		Genes:       genes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("store panel: %w", err)
	}

	s.auditor.LogPanelChange(ctx, audit.ActionPanelCreate, p.ID, nil, p.snapshot())
	return p, nil
}

// Update replaces a panel's metadata and genes, bumping the version.
func (s *Service) Update(ctx context.Context, id, name, description string, genes []Gene) (*Panel, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSnapshot := existing.snapshot()

	existing.Name = name
	existing.Description = description
	existing.Genes = genes
	existing.Version++
	existing.UpdatedAt = s.now()

	if err := s.store.Put(ctx, existing); err != nil {
		return nil, fmt.Errorf("store panel: %w", err)
	}

	s.auditor.LogPanelChange(ctx, audit.ActionPanelUpdate, id, oldSnapshot, existing.snapshot())
	return existing, nil
}

// Delete removes a panel, auditing its final state.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.auditor.LogPanelChange(ctx, audit.ActionPanelDelete, id, existing.snapshot(), nil)
	return nil
}

// AddGene appends a gene to a panel, rejecting duplicates by symbol.
func (s *Service) AddGene(ctx context.Context, panelID string, gene Gene) (*Panel, error) {
	existing, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	for _, g := range existing.Genes {
		if strings.EqualFold(g.Symbol, gene.Symbol) {
			return nil, fmt.Errorf("gene %s: %w", gene.Symbol, sentinel.ErrConflict)
		}
	}

	existing.Genes = append(existing.Genes, gene)
	existing.Version++
	existing.UpdatedAt = s.now()
	if err := s.store.Put(ctx, existing); err != nil {
		return nil, fmt.Errorf("store panel: %w", err)
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:       audit.ActionGeneAdd,
		Description:  fmt.Sprintf("added gene %s to panel %s", gene.Symbol, panelID),
		ResourceType: "panel",
		ResourceID:   panelID,
		Details: map[string]any{
			"symbol":     gene.Symbol,
			"confidence": gene.Confidence,
		},
	})
	return existing, nil
}

// RemoveGene drops a gene from a panel by symbol.
func (s *Service) RemoveGene(ctx context.Context, panelID, symbol string) (*Panel, error) {
	existing, err := s.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}

	kept := existing.Genes[:0:0]
	var removed bool
	for _, g := range existing.Genes {
		if strings.EqualFold(g.Symbol, symbol) {
			removed = true
			continue
		}
		kept = append(kept, g)
	}
	if !removed {
		return nil, fmt.Errorf("gene %s: %w", symbol, sentinel.ErrNotFound)
	}

	existing.Genes = kept
	existing.Version++
	existing.UpdatedAt = s.now()
	if err := s.store.Put(ctx, existing); err != nil {
		return nil, fmt.Errorf("store panel: %w", err)
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:       audit.ActionGeneRemove,
		Description:  fmt.Sprintf("removed gene %s from panel %s", symbol, panelID),
		ResourceType: "panel",
		ResourceID:   panelID,
		Details: map[string]any{
			"symbol": symbol,
		},
	})
	return existing, nil
}

// Merge combines two or more panels into a new one, deduplicating genes by
// symbol (highest confidence wins on conflict: green > amber > red). The
// whole operation runs under a scoped audit operation so its duration and
// outcome land in the trail even when a source lookup fails.
func (s *Service) Merge(ctx context.Context, sourceIDs []string, name string) (merged *Panel, err error) {
	op := s.auditor.Begin(ctx, audit.ActionPanelMerge,
		fmt.Sprintf("merge %d panels into %q", len(sourceIDs), name),
		audit.WithDetails(map[string]any{
			"source_ids": sourceIDs,
			"name":       name,
		}),
	)
	defer func() { op.End(err) }()

	if len(sourceIDs) < 2 {
		return nil, ErrMergeSourceCount
	}

	// Symbols compare case-insensitively everywhere in this package, so the
	// dedupe key folds case too.
	bySymbol := make(map[string]Gene)
	for _, id := range sourceIDs {
		src, getErr := s.store.Get(ctx, id)
		if getErr != nil {
			return nil, fmt.Errorf("load source panel %s: %w", id, getErr)
		}
		for _, g := range src.Genes {
			key := strings.ToUpper(g.Symbol)
			if existing, ok := bySymbol[key]; !ok || confidenceRank(g.Confidence) > confidenceRank(existing.Confidence) {
				bySymbol[key] = g
			}
		}
	}

	genes := make([]Gene, 0, len(bySymbol))
	for _, g := range bySymbol {
		genes = append(genes, g)
	}
	sort.Slice(genes, func(i, j int) bool { return genes[i].Symbol < genes[j].Symbol })

	now := s.now()
	merged = &Panel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: fmt.Sprintf("merged from %d panels", len(sourceIDs)),
		Version:     1,
		Genes:       genes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.store.Put(ctx, merged); err != nil {
		return nil, fmt.Errorf("store merged panel: %w", err)
	}
	return merged, nil
}

// Upload vets and parses an uploaded gene list (CSV: symbol,confidence) and
// creates a panel from it.
func (s *Service) Upload(ctx context.Context, filename string, content []byte, panelName string) (*Panel, error) {
	if s.checker != nil && !s.checker.CheckUpload(ctx, filename, content) {
		s.logger.WarnContext(ctx, "upload rejected by safety check", "filename", filename)
		return nil, ErrUploadRejected
	}

	genes, err := parseGeneCSV(content)
	if err != nil {
		return nil, fmt.Errorf("parse gene list: %w", err)
	}

	p, err := s.Create(ctx, panelName, "uploaded from "+filename, genes)
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:       audit.ActionPanelUpload,
		Description:  fmt.Sprintf("uploaded %q as panel %s", filename, p.ID),
		ResourceType: "panel",
		ResourceID:   p.ID,
		Details: map[string]any{
			"filename":   filename,
			"gene_count": len(genes),
		},
	})
	return p, nil
}

// Download renders a panel as CSV and audits the export.
func (s *Service) Download(ctx context.Context, id string) ([]byte, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("symbol,confidence\n")
	for _, g := range p.Genes {
		sb.WriteString(g.Symbol)
		sb.WriteByte(',')
		sb.WriteString(g.Confidence)
		sb.WriteByte('\n')
	}

	s.auditor.Log(ctx, audit.Entry{
		Action:       audit.ActionPanelDownload,
		Description:  fmt.Sprintf("downloaded panel %s (%d genes)", id, len(p.Genes)),
		ResourceType: "panel",
		ResourceID:   id,
		Details: map[string]any{
			"gene_count": len(p.Genes),
		},
	})
	return []byte(sb.String()), nil
}

// Search filters panels by name or gene symbol and audits the query.
func (s *Service) Search(ctx context.Context, query string) ([]*Panel, error) {
	panels, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	lowered := strings.ToLower(query)
	var out []*Panel
	for _, p := range panels {
		if strings.Contains(strings.ToLower(p.Name), lowered) {
			out = append(out, p)
			continue
		}
		for _, g := range p.Genes {
			if strings.EqualFold(g.Symbol, query) {
				out = append(out, p)
				break
			}
		}
	}

	s.auditor.LogSearch(ctx, query, len(out))
	return out, nil
}

func parseGeneCSV(content []byte) ([]Gene, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var genes []Gene
	for i, rec := range records {
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		// Skip a header row if present.
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "symbol") {
			continue
		}
		g := Gene{Symbol: strings.TrimSpace(rec[0]), Confidence: "green"}
		if len(rec) > 1 && rec[1] != "" {
			g.Confidence = strings.ToLower(strings.TrimSpace(rec[1]))
		}
		genes = append(genes, g)
	}
	return genes, nil
}

func confidenceRank(c string) int {
	switch strings.ToLower(c) {
	case "green":
		return 3
	case "amber":
		return 2
	case "red":
		return 1
	default:
		return 0
	}
}
