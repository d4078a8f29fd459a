package panel

import "time"

// Panel is a genetic test panel: a named, versioned set of genes.
type Panel struct {
	ID          string
	Name        string
	Description string
	Version     int
	Genes       []Gene
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Gene is one entry on a panel. Confidence follows the traffic-light
// convention used by panel curators (green/amber/red).
type Gene struct {
	Symbol     string
	Confidence string
}

// snapshot captures the audit-relevant state of a panel for old/new value
// payloads.
func (p *Panel) snapshot() map[string]any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"version":     p.Version,
		"gene_count":  len(p.Genes),
	}
}
