package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/raphaelgruber/diveroast/internal/llm"
	"github.com/raphaelgruber/diveroast/internal/models"
)

// Name tags one tool of the closed set.
type Name string

const (
	SearchIncidents  Name = "search_dan_incidents"
	SearchGuidelines Name = "search_dan_guidelines"
	ParseDiveLog     Name = "parse_dive_log"
	AnalyzeProfile   Name = "analyze_dive_profile"
	DiveSummary      Name = "get_dive_summary"
	ListDives        Name = "list_dives"
	RefreshCorpus    Name = "refresh_dan_data"
)

// SearchArgs are the arguments of both search tools.
type SearchArgs struct {
	Query string `json:"query" validate:"required,max=500" jsonschema:"What to look for, e.g. rapid ascent decompression sickness"`
	K     int    `json:"k,omitempty" validate:"omitempty,min=1,max=20" jsonschema:"Number of passages, 1-20"`
}

// ParseArgs are the arguments of parse_dive_log. Exactly one source is used;
// raw wins when both are set.
type ParseArgs struct {
	Raw      string `json:"raw,omitempty" validate:"required_without=FilePath" jsonschema:"Subsurface XML logbook content"`
	FilePath string `json:"file_path,omitempty" validate:"required_without=Raw" jsonschema:"Path to a Subsurface XML file (local clients only)"`
}

// DiveArgs select one dive of the current session.
type DiveArgs struct {
	DiveID string `json:"dive_id" validate:"required,max=32" jsonschema:"Dive number as listed by list_dives"`
}

// ListArgs optionally name a session other than the current one.
type ListArgs struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=64" jsonschema:"Session to list; defaults to the current session"`
}

// RefreshArgs is empty; the refresh takes no parameters.
type RefreshArgs struct{}

type toolDef struct {
	schema llm.ToolSchema
	args   func() any
}

var (
	kMin = 1.0
	kMax = 20.0
)

var searchProps = map[string]llm.Property{
	"query": {Type: "string", Description: "What to look for, e.g. rapid ascent decompression sickness"},
	"k":     {Type: "integer", Description: "Number of passages to return", Minimum: &kMin, Maximum: &kMax},
}

var diveProps = map[string]llm.Property{
	"dive_id": {Type: "string", Description: "Dive number as listed by list_dives"},
}

// table is the static schema table.
var table = map[Name]toolDef{
	SearchIncidents: {
		schema: llm.ToolSchema{
			Name:        string(SearchIncidents),
			Description: "Search DAN diving incident reports for real accidents similar to a dive problem.",
			Properties:  searchProps,
			Required:    []string{"query"},
		},
		args: func() any { return &SearchArgs{} },
	},
	SearchGuidelines: {
		schema: llm.ToolSchema{
			Name:        string(SearchGuidelines),
			Description: "Search DAN safety guidelines, health resources and Alert Diver articles.",
			Properties:  searchProps,
			Required:    []string{"query"},
		},
		args: func() any { return &SearchArgs{} },
	},
	ParseDiveLog: {
		schema: llm.ToolSchema{
			Name:        string(ParseDiveLog),
			Description: "Parse a Subsurface XML dive log into a new analysis session.",
			Properties: map[string]llm.Property{
				"raw":       {Type: "string", Description: "Subsurface XML logbook content"},
				"file_path": {Type: "string", Description: "Path to a Subsurface XML file"},
			},
		},
		args: func() any { return &ParseArgs{} },
	},
	AnalyzeProfile: {
		schema: llm.ToolSchema{
			Name:        string(AnalyzeProfile),
			Description: "Detailed safety analysis of one dive: ascent rates, NDL, air consumption and the thresholds it breaks.",
			Properties:  diveProps,
			Required:    []string{"dive_id"},
		},
		args: func() any { return &DiveArgs{} },
	},
	DiveSummary: {
		schema: llm.ToolSchema{
			Name:        string(DiveSummary),
			Description: "Short summary of one dive: site, depth, duration, SAC and rating.",
			Properties:  diveProps,
			Required:    []string{"dive_id"},
		},
		args: func() any { return &DiveArgs{} },
	},
	ListDives: {
		schema: llm.ToolSchema{
			Name:        string(ListDives),
			Description: "List all analysed dives of the session with site, max depth and rating.",
			Properties: map[string]llm.Property{
				"session_id": {Type: "string", Description: "Session to list; defaults to the current session"},
			},
		},
		args: func() any { return &ListArgs{} },
	},
	RefreshCorpus: {
		schema: llm.ToolSchema{
			Name:        string(RefreshCorpus),
			Description: "Re-scrape DAN incident reports and guidelines and rebuild the search corpus in the background.",
			Properties:  map[string]llm.Property{},
		},
		args: func() any { return &RefreshArgs{} },
	},
}

// order fixes the presentation order of the table.
var order = []Name{SearchIncidents, SearchGuidelines, ParseDiveLog, AnalyzeProfile, DiveSummary, ListDives, RefreshCorpus}

// Schemas returns the declarations offered to the model.
func Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, len(order))
	for i, n := range order {
		out[i] = table[n].schema
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeArgs maps model-supplied arguments onto the tool's typed struct.
// Unknown tools, unknown fields, wrong types and failed validation all fail.
func decodeArgs(call models.ToolCall) (any, error) {
	s, ok := table[Name(call.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTool, call.Name)
	}

	args := s.args()
	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, call.Name, err)
	}
	if call.Arguments == nil {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, call.Name, err)
	}
	if err := validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, fmt.Errorf("%w: %s: field %s failed %q", models.ErrInvalidArguments, call.Name, fe.Field(), fe.Tag())
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidArguments, call.Name, err)
	}
	return args, nil
}
