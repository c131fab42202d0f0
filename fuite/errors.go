package fuite

import "errors"

// ErrNoSites is returned when the configuration monitors no sites.
var ErrNoSites = errors.New("fuite: no sites configured")

// ErrReloadFailed wraps a failed rules/proxies reload; the previous
// generation stays in effect.
var ErrReloadFailed = errors.New("fuite: reload failed")
