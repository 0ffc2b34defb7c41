package ethauth

import (
	"context"
)

// ConnectMessage starts a third-party provider login
type ConnectMessage struct {
	Provider   string
	Callback   string
	Policy     *Policy
	OnResponse func(redirectURL string)
}

func (m ConnectMessage) Type() string { return "user.connect" }

// ConnectHandler resolves the authorization URL of an enabled provider
type ConnectHandler struct {
	policies  PolicyStore
	connector ProviderConnector
	logger    Logger
}

// NewConnectHandler creates a handler with sane defaults.
func NewConnectHandler(policies PolicyStore, connector ProviderConnector) *ConnectHandler {
	return &ConnectHandler{
		policies:  policies,
		connector: connector,
		logger:    defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ConnectHandler) WithLogger(logger Logger) *ConnectHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConnectHandler) Execute(ctx context.Context, event ConnectMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "provider connect")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConnectHandler) execute(ctx context.Context, event ConnectMessage) error {
	policy, err := resolvePolicy(ctx, h.policies, event.Policy)
	if err != nil {
		return err
	}

	// the local provider has no authorization redirect
	if event.Provider == ProviderLocal || event.Provider == ProviderEmail || !policy.ProviderEnabled(event.Provider) {
		return errProviderDisabled()
	}

	if h.connector == nil {
		return errProviderDisabled()
	}

	settings, _ := policy.Provider(event.Provider)

	callback := settings.Callback
	if event.Callback != "" {
		callback = event.Callback
	}

	url, err := h.connector.RedirectURL(ctx, event.Provider, settings, callback)
	if err != nil {
		h.logger.Error("provider redirect failed", "provider", event.Provider, "error", err)
		return WrapDownstream(err, IDProviderConnectFailed, "failed to build provider redirect")
	}

	if event.OnResponse != nil {
		event.OnResponse(url)
	}

	return nil
}
