package provider

import "testing"

func Test_Config_OllamaNeedsNoCredentials(t *testing.T) {
	t.Parallel()
	cfg := &Config{Backend: BackendOllama, Model: "llama3"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func Test_Config_OpenAIRequiresAPIKey(t *testing.T) {
	t.Parallel()
	cfg := &Config{Backend: BackendOpenAI, Model: "gpt-4o"}
	if err := cfg.Validate(); err == nil {
		t.Error("want error for openai backend without API key")
	}
	cfg.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate with key: %v", err)
	}
}

func Test_Config_AzureRequiresEndpointAndDeployment(t *testing.T) {
	t.Parallel()
	cfg := &Config{Backend: BackendAzure, APIKey: "key"}
	if err := cfg.Validate(); err == nil {
		t.Error("want error for azure backend without endpoint")
	}
	cfg.BaseURL = "https://example.openai.azure.com"
	if err := cfg.Validate(); err == nil {
		t.Error("want error for azure backend without deployment")
	}
	cfg.AzureDeployment = "gpt-4o"
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate complete azure config: %v", err)
	}
}

func Test_Config_UnknownBackendRejected(t *testing.T) {
	t.Parallel()
	cfg := &Config{Backend: "bedrock"}
	if err := cfg.Validate(); err == nil {
		t.Error("want error for unsupported backend")
	}
}
