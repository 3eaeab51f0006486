// Package workingsetcompiler exposes the working set compiler as a
// semstreams NATS/JetStream processor component.
package workingsetcompiler

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

var workingSetCompilerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the working-set-compiler processor
// component.
type Config struct {
	StreamName          string `json:"stream_name" schema:"type:string,description:JetStream stream for compile requests,category:basic,default:AGENT"`
	ConsumerName        string `json:"consumer_name" schema:"type:string,description:Durable consumer name for compile requests,category:basic,default:workingset-compiler"`
	InputSubjectPattern string `json:"input_subject_pattern" schema:"type:string,description:Subject pattern for compile requests,category:basic,default:compile.request.>"`
	OutputSubjectPrefix string `json:"output_subject_prefix" schema:"type:string,description:Subject prefix for compile responses,category:basic,default:compile.result"`

	DefaultBudgetTokens int `json:"default_budget_tokens" schema:"type:int,description:Default budget when a request omits one,category:advanced,default:8000,min:16,max:200000"`

	SemanticServiceURL   string `json:"semantic_service_url" schema:"type:string,description:Semantic search service base URL,category:basic,default:http://localhost:8090"`
	LexicalServiceURL    string `json:"lexical_service_url" schema:"type:string,description:Lexical search service base URL,category:basic,default:http://localhost:8091"`
	GraphServiceURL      string `json:"graph_service_url" schema:"type:string,description:Optional graph service base URL,category:advanced"`
	SessionServiceURL    string `json:"session_service_url" schema:"type:string,description:Session service base URL,category:advanced"`
	MemoryServiceURL     string `json:"memory_service_url" schema:"type:string,description:Memory service base URL,category:advanced"`
	RepoRoot             string `json:"repo_root" schema:"type:string,description:Repository root for hydration and structural parsing,category:basic"`

	DiversityLambda float64 `json:"diversity_lambda" schema:"type:float,description:Default MMR relevance/diversity trade-off,category:advanced,default:0.6,min:0,max:1"`
	SourceRatioCap  float64 `json:"source_ratio_cap" schema:"type:float,description:Default per-source cap once enforcement is active,category:advanced,default:0.4,min:0,max:1"`

	ResponseBucketName string `json:"response_bucket_name" schema:"type:string,description:KV bucket for compile responses,category:advanced,default:COMPILE_RESPONSES"`
	ResponseTTLHours   int    `json:"response_ttl_hours" schema:"type:int,description:TTL for compile responses in hours,category:advanced,default:24,min:1,max:168"`

	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StreamName:          "AGENT",
		ConsumerName:        "workingset-compiler",
		InputSubjectPattern: "compile.request.>",
		OutputSubjectPrefix: "compile.result",
		DefaultBudgetTokens: 8000,
		SemanticServiceURL:  "http://localhost:8090",
		LexicalServiceURL:   "http://localhost:8091",
		DiversityLambda:     0.6,
		SourceRatioCap:      0.4,
		ResponseBucketName:  "COMPILE_RESPONSES",
		ResponseTTLHours:    24,
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "compile-requests",
					Type:        "jetstream",
					Subject:     "compile.request.>",
					StreamName:  "AGENT",
					Description: "Receive working set compile requests",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "compile-results",
					Type:        "nats",
					Subject:     "compile.result.>",
					Description: "Publish compiled working sets",
					Required:    false,
				},
			},
		},
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.InputSubjectPattern == "" {
		return fmt.Errorf("input_subject_pattern is required")
	}
	if c.OutputSubjectPrefix == "" {
		return fmt.Errorf("output_subject_prefix is required")
	}
	if c.DefaultBudgetTokens <= 0 {
		return fmt.Errorf("default_budget_tokens must be positive")
	}
	return nil
}
