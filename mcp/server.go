// Package mcp exposes the grammar toolkit as Model Context Protocol
// tools, so MCP-speaking assistants can validate grammars, probe parser
// state, and run full comparisons without touching the HTTP surface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/gramflow/client"
	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/grammar"
	"github.com/sweetpotato0/gramflow/store"
)

// Service is what the tools need from the grammar server: the compare
// backend calls plus the pure analysis endpoints.
type Service interface {
	compare.Backend
	CheckPartial(ctx context.Context, spec, input string) (*client.PartialCheck, error)
	ParseToAST(ctx context.Context, spec, input string) (*client.ASTResult, error)
}

// ClientService adapts *client.Client to the Service seam.
type ClientService struct {
	compare.ServerBackend
	c *client.Client
}

// NewClientService wraps a grammar-server client.
func NewClientService(c *client.Client) ClientService {
	return ClientService{ServerBackend: compare.NewServerBackend(c), c: c}
}

func (s ClientService) CheckPartial(ctx context.Context, spec, input string) (*client.PartialCheck, error) {
	return s.c.CheckPartial(ctx, spec, input)
}

func (s ClientService) ParseToAST(ctx context.Context, spec, input string) (*client.ASTResult, error) {
	return s.c.ParseToAST(ctx, spec, input)
}

var _ Service = ClientService{}

// ServerOption configures NewServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	impl    sdkmcp.Implementation
	library *grammar.Library
	store   store.Store
}

// WithServerInfo overrides the implementation metadata advertised during
// the MCP handshake. Empty fields keep their defaults.
func WithServerInfo(name, title, version string) ServerOption {
	return func(cfg *serverConfig) {
		if name != "" {
			cfg.impl.Name = name
		}
		if title != "" {
			cfg.impl.Title = title
		}
		if version != "" {
			cfg.impl.Version = version
		}
	}
}

// WithLibrary lets tool calls name a grammar from the local library
// instead of inlining its spec.
func WithLibrary(lib *grammar.Library) ServerOption {
	return func(cfg *serverConfig) { cfg.library = lib }
}

// WithStore persists a record of every comparison run through the
// compare_generations tool.
func WithStore(st store.Store) ServerOption {
	return func(cfg *serverConfig) { cfg.store = st }
}

// NewServer builds an MCP server exposing the grammar service as tools.
// The returned server is ready for a StdioTransport or the streamable
// HTTP handler; Serve and HTTPHandler wire those up.
func NewServer(svc Service, opts ...ServerOption) *sdkmcp.Server {
	cfg := serverConfig{
		impl: sdkmcp.Implementation{
			Name:    "gramflow",
			Version: "0.1.0",
			Title:   "grammar-constrained generation tools",
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	server := sdkmcp.NewServer(&cfg.impl, nil)
	ts := &toolset{svc: svc, library: cfg.library, store: cfg.store}
	ts.addValidateGrammar(server)
	ts.addDebugGrammar(server)
	ts.addCheckPartial(server)
	ts.addParseToAST(server)
	ts.addCompareGenerations(server)
	return server
}

// Serve runs the server on stdio until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, server *sdkmcp.Server) error {
	return server.Run(ctx, &sdkmcp.StdioTransport{})
}

// HTTPHandler serves the server over the MCP streamable HTTP transport
// at the given path.
func HTTPHandler(server *sdkmcp.Server, path string) http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(r *http.Request) *sdkmcp.Server {
		if r.URL.Path == path {
			return server
		}
		return nil
	}, nil)
}

type toolset struct {
	svc     Service
	library *grammar.Library
	store   store.Store
}

// resolveSpec returns the grammar text for a tool call: the inline spec
// when given, otherwise a named grammar from the library.
func (t *toolset) resolveSpec(spec, name string) (string, error) {
	if strings.TrimSpace(spec) != "" {
		return spec, nil
	}
	if name == "" {
		return "", fmt.Errorf("spec or grammar_name is required")
	}
	if t.library == nil {
		return "", fmt.Errorf("no grammar library configured to resolve %q", name)
	}
	g, err := t.library.Get(name)
	if err != nil {
		return "", err
	}
	return g.Spec, nil
}

// jsonResult renders a tool result as indented JSON text.
func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func (t *toolset) addValidateGrammar(server *sdkmcp.Server) {
	type args struct {
		Spec        string `json:"spec,omitempty" jsonschema:"Grammar source to validate"`
		GrammarName string `json:"grammar_name,omitempty" jsonschema:"Name of a grammar in the local library, used when spec is empty"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "validate_grammar",
		Description: "Check whether a grammar spec is well-formed and report its start nonterminal",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		spec, err := t.resolveSpec(a.Spec, a.GrammarName)
		if err != nil {
			return nil, nil, err
		}
		v, err := t.svc.ValidateGrammar(ctx, spec)
		if err != nil {
			return nil, nil, fmt.Errorf("validate grammar: %w", err)
		}
		return jsonResult(v)
	})
}

func (t *toolset) addDebugGrammar(server *sdkmcp.Server) {
	type args struct {
		Spec        string `json:"spec,omitempty" jsonschema:"Grammar source to parse against"`
		GrammarName string `json:"grammar_name,omitempty" jsonschema:"Name of a grammar in the local library, used when spec is empty"`
		Input       string `json:"input" jsonschema:"Text to feed through the grammar"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "debug_grammar",
		Description: "Parse text against a grammar and report validity, completeness, accepted continuations and well-typed parse count",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		spec, err := t.resolveSpec(a.Spec, a.GrammarName)
		if err != nil {
			return nil, nil, err
		}
		res, err := t.svc.DebugGrammar(ctx, spec, a.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("debug grammar: %w", err)
		}
		return jsonResult(res)
	})
}

func (t *toolset) addCheckPartial(server *sdkmcp.Server) {
	type args struct {
		Spec        string `json:"spec,omitempty" jsonschema:"Grammar source to check against"`
		GrammarName string `json:"grammar_name,omitempty" jsonschema:"Name of a grammar in the local library, used when spec is empty"`
		Input       string `json:"input" jsonschema:"Candidate prefix to test"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "check_partial",
		Description: "Report whether text is a valid prefix of some sentence in the grammar's language",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		spec, err := t.resolveSpec(a.Spec, a.GrammarName)
		if err != nil {
			return nil, nil, err
		}
		res, err := t.svc.CheckPartial(ctx, spec, a.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("check partial: %w", err)
		}
		return jsonResult(res)
	})
}

func (t *toolset) addParseToAST(server *sdkmcp.Server) {
	type args struct {
		Spec        string `json:"spec,omitempty" jsonschema:"Grammar source to parse against"`
		GrammarName string `json:"grammar_name,omitempty" jsonschema:"Name of a grammar in the local library, used when spec is empty"`
		Input       string `json:"input" jsonschema:"Text to parse into a syntax tree"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "parse_to_ast",
		Description: "Parse text against a grammar and return the syntax tree as an s-expression",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		spec, err := t.resolveSpec(a.Spec, a.GrammarName)
		if err != nil {
			return nil, nil, err
		}
		res, err := t.svc.ParseToAST(ctx, spec, a.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("parse to ast: %w", err)
		}
		return jsonResult(res)
	})
}

func (t *toolset) addCompareGenerations(server *sdkmcp.Server) {
	type args struct {
		Spec           string  `json:"spec,omitempty" jsonschema:"Grammar source the constrained pass is masked by"`
		GrammarName    string  `json:"grammar_name,omitempty" jsonschema:"Name of a grammar in the local library, used when spec is empty"`
		Prompt         string  `json:"prompt" jsonschema:"Prompt both passes share"`
		Initial        string  `json:"initial,omitempty" jsonschema:"Constrained output to continue from; must be a valid prefix under the grammar"`
		Model          string  `json:"model,omitempty" jsonschema:"Generation model, defaults to gpt2"`
		MaxTokens      int     `json:"max_tokens,omitempty" jsonschema:"Token budget per pass, defaults to 50"`
		GrammarTokens  int     `json:"grammar_tokens,omitempty" jsonschema:"Budget for the constrained portion, defaults to max_tokens"`
		TopK           int     `json:"top_k,omitempty" jsonschema:"Top-k sampling cutoff, defaults to 50"`
		Temperature    float64 `json:"temperature,omitempty" jsonschema:"Sampling temperature, defaults to 1.0"`
		StopOnComplete bool    `json:"stop_on_complete,omitempty" jsonschema:"End the constrained pass at the first complete program"`
		MaskWhitespace *bool   `json:"mask_whitespace,omitempty" jsonschema:"Ban whitespace-only continuations during the constrained pass, defaults to true"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "compare_generations",
		Description: "Run an unconstrained and a grammar-constrained generation over the same prompt and return both texts with a diagnostic of the free output",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (*sdkmcp.CallToolResult, any, error) {
		spec, err := t.resolveSpec(a.Spec, a.GrammarName)
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(a.Prompt) == "" {
			return nil, nil, fmt.Errorf("prompt is required")
		}

		start := compare.StartRequest{
			GrammarName:    a.GrammarName,
			Grammar:        spec,
			Prompt:         a.Prompt,
			Initial:        a.Initial,
			Model:          a.Model,
			MaxTokens:      a.MaxTokens,
			GrammarTokens:  a.GrammarTokens,
			TopK:           a.TopK,
			Temperature:    a.Temperature,
			StopOnComplete: a.StopOnComplete,
			MaskWhitespace: a.MaskWhitespace == nil || *a.MaskWhitespace,
		}
		var opts []compare.Option
		if t.store != nil {
			opts = append(opts, compare.WithStore(t.store))
		}
		snap, err := compare.Collect(ctx, t.svc, start, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("compare generations: %w", err)
		}
		return jsonResult(snap)
	})
}
