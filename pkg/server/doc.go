// Package server exposes the shift-analytics dashboard as a chi-routed JSON
// API. It owns the HTTP surface only: archive intake is delegated to
// pkg/upload and pkg/archive, session lifecycle to pkg/session, and all
// analytics to pkg/scenario.
//
// A request presenting a session ID can only reach that session's data;
// there is no cross-session route.
package server
