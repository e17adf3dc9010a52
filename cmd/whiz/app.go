package main

import (
	"urduwhiz/internal/api"
	"urduwhiz/internal/auth"
	"urduwhiz/internal/session"
)

// app bundles the wired client stack behind every command.
type app struct {
	store      *auth.Store
	client     *api.Client
	authMgr    *auth.Manager
	sessions   *session.Manager
	dispatcher *session.Dispatcher
}

// newApp wires the credential store, HTTP client, and state machines
// together. The transport's auth-expiry hook drops the UI to anonymous the
// moment a 401 survives the refresh cycle.
func newApp() (*app, error) {
	store, err := auth.NewStore()
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg.Server.BaseURL, store, api.Options{
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	authMgr := auth.NewManager(store, client, logger)
	client.Transport().OnAuthExpired = authMgr.ForceAnonymous

	sessions := session.NewManager(client, logger)
	dispatcher := session.NewDispatcher(sessions, logger)

	return &app{
		store:      store,
		client:     client,
		authMgr:    authMgr,
		sessions:   sessions,
		dispatcher: dispatcher,
	}, nil
}
