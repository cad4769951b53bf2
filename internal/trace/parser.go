// Package trace tokenizes machine-readable markers embedded in free-form
// TRACE text (an agent response or user message fragment) and converts
// reinforcement grades into integer seat awards via Hamilton apportionment.
//
// The parser does not validate schema conformance — it only tokenizes. Type
// and contract validation happens downstream in internal/formation.
package trace

import (
	"bufio"
	"regexp"
	"strings"
)

// Grade is one of the five reinforcement grades a reinforcement tag may
// carry, ordered from most to least useful.
type Grade string

const (
	GradeVeryUseful     Grade = "very useful"
	GradeUseful         Grade = "useful"
	GradeSomewhatUseful Grade = "somewhat useful"
	GradeNotUseful      Grade = "not useful"
	GradeMisleading     Grade = "misleading"
)

// FormationBlock is a tokenized [NODE_FORMATION: Type] or
// [LINK_FORMATION: Type] block: the header's type name plus the key/value
// lines that followed it, in the order they appeared.
type FormationBlock struct {
	Type   string
	Fields map[string]string
	// Order preserves the original field order, since some formation
	// fields (e.g. description) may be overwritten by later duplicate keys
	// and callers may want to know which one won.
	Order []string
}

// Parsed is the tokenized output of a single TRACE blob.
type Parsed struct {
	// ReinforcementGrades maps node_id to the grade it was tagged with.
	// A node_id mentioned more than once keeps its last grade.
	ReinforcementGrades map[string]Grade

	// NodeFormations and LinkFormations preserve block order as they
	// appeared in the text.
	NodeFormations []FormationBlock
	LinkFormations []FormationBlock

	// EntityActivations holds opaque free-form entity-activation prose,
	// keyed by the entity id named in an "[entity: X]" annotation, valued
	// by the text that followed it up to the next marker or line break.
	// The parser keeps this opaque; it is consumed by
	// internal/entitycontext, not interpreted here.
	EntityActivations map[string]string

	// EntityOrder lists the entity ids named in "[entity: X]" annotations
	// in the order they first appeared in the text.
	EntityOrder []string
}

var (
	reinforcementTag = regexp.MustCompile(`\[([^:\[\]]+):\s*(very useful|useful|somewhat useful|not useful|misleading)\]`)
	formationHeader  = regexp.MustCompile(`^\[(NODE_FORMATION|LINK_FORMATION):\s*([A-Za-z0-9_]+)\]\s*$`)
	entityAnnotation = regexp.MustCompile(`\[entity:\s*([^\]]+)\]`)
	fieldLine        = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):\s*(.*)$`)
)

// Parse tokenizes raw TRACE text. It never returns an error: unrecognized
// text is prose and is left untouched (or, for entity annotations, captured
// opaquely).
func Parse(text string) Parsed {
	p := Parsed{
		ReinforcementGrades: make(map[string]Grade),
		EntityActivations:   make(map[string]string),
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if m := formationHeader.FindStringSubmatch(line); m != nil {
			block, next := parseFormationBlock(lines, i+1, m[2])
			if m[1] == "NODE_FORMATION" {
				p.NodeFormations = append(p.NodeFormations, block)
			} else {
				p.LinkFormations = append(p.LinkFormations, block)
			}
			i = next - 1
			continue
		}

		for _, m := range reinforcementTag.FindAllStringSubmatch(line, -1) {
			nodeID := strings.TrimSpace(m[1])
			p.ReinforcementGrades[nodeID] = Grade(m[2])
		}

		for _, m := range entityAnnotation.FindAllStringSubmatch(line, -1) {
			entityID := strings.TrimSpace(m[1])
			if _, seen := p.EntityActivations[entityID]; !seen {
				p.EntityOrder = append(p.EntityOrder, entityID)
			}
			rest := strings.TrimSpace(strings.Replace(line, m[0], "", 1))
			if rest != "" {
				p.EntityActivations[entityID] = rest
			} else if _, seen := p.EntityActivations[entityID]; !seen {
				p.EntityActivations[entityID] = ""
			}
		}
	}

	return p
}

// parseFormationBlock reads key: value lines starting at lines[from] until a
// blank line, the next marker, or end of input. Returns the block and the
// index of the first line not consumed.
func parseFormationBlock(lines []string, from int, typ string) (FormationBlock, int) {
	block := FormationBlock{Type: typ, Fields: make(map[string]string)}

	i := from
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			break
		}
		if formationHeader.MatchString(line) || reinforcementTag.MatchString(line) {
			break
		}
		if m := fieldLine.FindStringSubmatch(line); m != nil {
			key, val := m[1], strings.TrimSpace(m[2])
			if _, exists := block.Fields[key]; !exists {
				block.Order = append(block.Order, key)
			}
			block.Fields[key] = val
		}
	}

	return block, i
}
