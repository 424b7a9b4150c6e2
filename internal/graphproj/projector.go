// Package graphproj implements §4.8: projecting canonical entities and
// relationships into Neo4j, workflow-scoped, with a stable per-label
// property schema and idempotent MERGE-based upserts.
package graphproj

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// propertySchema lists the schema-approved attribute keys persisted
// onto each entity_type's graph label. Any attribute key not listed
// here is dropped rather than projected, keeping the graph's property
// surface fixed regardless of what an upstream extraction happens to
// attach to an entity.
var propertySchema = map[string][]string{
	"policy":      {"policy_number", "policy_period_start", "policy_period_end", "carrier_name", "named_insured"},
	"organization": {"name", "role", "address", "naic_number"},
	"coverage":    {"coverage_type", "limit", "deductible", "premium"},
	"location":    {"address", "location_number", "construction_type", "occupancy_type", "year_built"},
	"claim":       {"claim_number", "date_of_loss", "status", "paid_amount", "reserved_amount"},
	"endorsement": {"endorsement_number", "title", "effective_date"},
	"condition":   {"condition_text"},
	"exclusion":   {"description"},
	"definition":  {"term", "definition_text"},
	"vehicle":     {"vin", "make", "model", "year"},
	"driver":      {"name", "license_number"},
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9]+`)

// Label returns the graph node label for an entity_type: Go exported
// form, e.g. "organization" -> "Organization".
func Label(entityType string) string {
	if entityType == "" {
		return "Entity"
	}
	return strings.ToUpper(entityType[:1]) + entityType[1:]
}

// SanitizeRelationshipType upper-cases a relationship type and
// replaces every run of non-alphanumeric characters with "_", so a
// closed-vocabulary RelationshipType always projects to a valid Cypher
// relationship type token.
func SanitizeRelationshipType(relType string) string {
	upper := strings.ToUpper(relType)
	return nonAlphanumeric.ReplaceAllString(upper, "_")
}

// approvedProperties filters attrs down to the schema-approved keys
// for entityType, dropping nil and empty-string values.
func approvedProperties(entityType string, attrs map[string]any) map[string]any {
	allowed := propertySchema[strings.ToLower(entityType)]
	out := make(map[string]any, len(allowed))
	for _, key := range allowed {
		v, ok := attrs[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		out[key] = v
	}
	return out
}

// Projector writes canonical entities and relationships into Neo4j.
type Projector struct {
	driver neo4j.DriverWithContext
}

// New builds a Projector over an already-connected driver.
func New(driver neo4j.DriverWithContext) *Projector {
	return &Projector{driver: driver}
}

// EnsureConstraints creates a uniqueness constraint on (id, workflow_id)
// for every label in the property schema, plus the "Entity" label used
// for entities with an empty entity_type. Entity types outside the
// schema get their own label and no constraint. Safe to call repeatedly: Neo4j
// treats a constraint creation over an already-existing constraint as
// a no-op.
func (p *Projector) EnsureConstraints(ctx context.Context) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	labels := make([]string, 0, len(propertySchema)+1)
	for entityType := range propertySchema {
		labels = append(labels, Label(entityType))
	}
	labels = append(labels, "Entity")

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range labels {
			constraintName := "uniq_" + strings.ToLower(label) + "_id_workflow"
			query := fmt.Sprintf(
				"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (n.id, n.workflow_id) IS UNIQUE",
				constraintName, label)
			if _, err := tx.Run(ctx, query, nil); err != nil {
				return nil, fmt.Errorf("graphproj: ensure constraint for %s: %w", label, err)
			}
		}
		return nil, nil
	})
	return err
}

// Project writes every entity's node and every relationship's edge for
// one workflow run. Re-running Project for the same workflow_id
// produces the same node/edge set, since every write is a MERGE keyed
// on the same natural identity.
func (p *Projector) Project(ctx context.Context, workflowID string, entities []docmodel.CanonicalEntity, relationships []docmodel.EntityRelationship) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	canonicalKeyByEntityID := make(map[string]string, len(entities))
	for _, e := range entities {
		canonicalKeyByEntityID[e.ID] = e.CanonicalKey
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range entities {
			if err := mergeNode(ctx, tx, workflowID, e); err != nil {
				return nil, err
			}
		}
		for _, r := range relationships {
			if err := mergeEdge(ctx, tx, workflowID, r, canonicalKeyByEntityID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graphproj: project workflow %s: %w", workflowID, err)
	}
	return nil
}

func mergeNode(ctx context.Context, tx neo4j.ManagedTransaction, workflowID string, e docmodel.CanonicalEntity) error {
	label := Label(e.EntityType)
	props := approvedProperties(e.EntityType, e.Attributes)
	props["id"] = e.CanonicalKey
	props["workflow_id"] = workflowID

	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id, workflow_id: $workflow_id})
		SET n += $props`, label)
	if _, err := tx.Run(ctx, query, map[string]any{
		"id":         e.CanonicalKey,
		"workflow_id": workflowID,
		"props":      props,
	}); err != nil {
		return fmt.Errorf("graphproj: merge node %s/%s: %w", label, e.CanonicalKey, err)
	}
	return nil
}

func mergeEdge(ctx context.Context, tx neo4j.ManagedTransaction, workflowID string, r docmodel.EntityRelationship, canonicalKeyByEntityID map[string]string) error {
	sourceKey, ok := canonicalKeyByEntityID[r.SourceEntityID]
	if !ok {
		return fmt.Errorf("graphproj: no canonical entity for source %s", r.SourceEntityID)
	}
	targetKey, ok := canonicalKeyByEntityID[r.TargetEntityID]
	if !ok {
		return fmt.Errorf("graphproj: no canonical entity for target %s", r.TargetEntityID)
	}

	edgeType := SanitizeRelationshipType(string(r.RelationshipType))
	evidence := make([]string, 0, len(r.Evidence))
	for _, ev := range r.Evidence {
		evidence = append(evidence, evidenceString(ev))
	}

	query := fmt.Sprintf(`
		MATCH (source {id: $source_id, workflow_id: $workflow_id})
		MATCH (target {id: $target_id, workflow_id: $workflow_id})
		MERGE (source)-[rel:%s {workflow_id: $workflow_id}]->(target)
		SET rel.confidence = $confidence,
		    rel.evidence = $evidence,
		    rel.source = "llm_extraction",
		    rel.created_at = $created_at`, edgeType)

	if _, err := tx.Run(ctx, query, map[string]any{
		"source_id":   sourceKey,
		"target_id":   targetKey,
		"workflow_id": workflowID,
		"confidence":  r.Confidence,
		"evidence":    evidence,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("graphproj: merge edge %s->%s (%s): %w", sourceKey, targetKey, edgeType, err)
	}
	return nil
}

// evidenceString JSON-encodes one RelationshipEvidence into a single
// string, since Neo4j relationship properties must be primitives or
// primitive arrays, not nested maps.
func evidenceString(ev docmodel.RelationshipEvidence) string {
	switch {
	case ev.Quote != "":
		return fmt.Sprintf(`{"quote":%q}`, ev.Quote)
	case ev.TableID != "":
		return fmt.Sprintf(`{"table_id":%q}`, ev.TableID)
	case ev.SOVID != "":
		return fmt.Sprintf(`{"sov_id":%q}`, ev.SOVID)
	case ev.ClaimID != "":
		return fmt.Sprintf(`{"claim_id":%q}`, ev.ClaimID)
	default:
		return "{}"
	}
}
