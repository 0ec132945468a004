// Package api serves the daemon's HTTP interface and defines its wire types.
//
// Routes are registered on a gorilla/mux router under /api: job submission
// (JSON URL or multipart upload), job lookup and listing, a websocket that
// streams job snapshots until the job is terminal, transcript status, trigger
// and text, the published episode list, and the public podcast settings.
//
// Every request carries an X-Request-ID, generated when the client does not
// send one, which becomes the correlation id of any job it creates. When
// paths.api_token is set all /api routes require a matching bearer token.
//
// DTOs use snake_case JSON tags. Timestamps are RFC3339 with milliseconds.
// Errors are classified through services.HTTPStatus so validation failures
// surface as 400 and unknown resources as 404.
package api
