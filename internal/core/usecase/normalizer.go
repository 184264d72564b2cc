package usecase

import (
	"log"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

// NormalizerConfig holds the static classification rules. The allow-list and
// both category maps are configuration rather than inline literals so the
// fallback chain stays independently testable.
type NormalizerConfig struct {
	KnownTables      []string
	TypeCategories   map[string]string
	TableCategories  map[string]string
	FallbackTable    string
	FallbackCategory string
	DefaultImpact    string
}

// DefaultNormalizerConfig returns the rules for the SilverNonStop pipeline
// tables.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		KnownTables: []string{
			"Talentos",
			"Perfiles_Narrativos",
			"Config_FEM",
			"Etapas_Pipeline",
			"Metricas_Calidad",
			"Sistema_General",
		},
		TypeCategories: map[string]string{
			"Error_Integridad":     "Integridad_Datos",
			"Campo_Faltante":       "Calidad_Datos",
			"FEM_Inconsistente":    "Configuracion_FEM",
			"Solapamiento_Rangos":  "Validacion_Rangos",
			"Fallo_Sincronizacion": "Sincronizacion",
		},
		TableCategories: map[string]string{
			"Config_FEM":          "Configuracion_FEM",
			"Perfiles_Narrativos": "Calidad_Narrativa",
			"Metricas_Calidad":    "Calidad_Datos",
		},
		FallbackTable:    domain.FallbackTable,
		FallbackCategory: domain.FallbackCategory,
		DefaultImpact:    domain.DefaultNarrativeImpact,
	}
}

// Normalizer canonicalizes incoming events. Normalize is pure apart from a
// warning log on origin-table fallback and never fails: unknown input degrades
// to defaults so the audit trail stays available.
type Normalizer struct {
	cfg   NormalizerConfig
	known map[string]struct{}
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	if cfg.FallbackTable == "" {
		cfg.FallbackTable = domain.FallbackTable
	}
	if cfg.FallbackCategory == "" {
		cfg.FallbackCategory = domain.FallbackCategory
	}
	if cfg.DefaultImpact == "" {
		cfg.DefaultImpact = domain.DefaultNarrativeImpact
	}
	known := make(map[string]struct{}, len(cfg.KnownTables))
	for _, table := range cfg.KnownTables {
		known[table] = struct{}{}
	}
	return &Normalizer{cfg: cfg, known: known}
}

func (n *Normalizer) Normalize(raw domain.IncomingEvent) domain.IncomingEvent {
	if _, ok := n.known[raw.OriginTable]; !ok {
		log.Printf("normalize: unknown origin table %q, falling back to %s", raw.OriginTable, n.cfg.FallbackTable)
		raw.OriginTable = n.cfg.FallbackTable
	}

	if raw.Category == "" {
		raw.Category = n.deriveCategory(raw.EventType, raw.OriginTable)
	}
	if raw.NarrativeImpact == "" {
		raw.NarrativeImpact = n.cfg.DefaultImpact
	}
	if raw.ContextData == nil {
		raw.ContextData = map[string]any{}
	}
	return raw
}

// deriveCategory resolves a category for events the caller left unclassified:
// the specific event type wins over the coarser table-level default, which
// wins over the generic data-integrity category.
func (n *Normalizer) deriveCategory(eventType, originTable string) string {
	if category, ok := n.cfg.TypeCategories[eventType]; ok {
		return category
	}
	if category, ok := n.cfg.TableCategories[originTable]; ok {
		return category
	}
	return n.cfg.FallbackCategory
}
