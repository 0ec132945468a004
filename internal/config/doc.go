// Package config loads, normalizes, and validates yt2pod configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as SITE_URL, MEDIA_BASE_URL and
// ASSEMBLYAI_API_KEY. The Config type centralizes every knob the daemon and
// CLI need so podcast output paths, feed settings and external service
// credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
