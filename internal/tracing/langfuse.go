package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Setup initialises the Langfuse callback handler from the resolved tracing
// config. Returns a flush function that must be called before process exit
// to ensure all traces are sent. If no keys are configured, both return
// values are nil and tracing is silently disabled.
func Setup(host, publicKey, secretKey string) (callbacks.Handler, func(), bool) {
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})

	return handler, flusher, true
}
