// Package episode defines the feed entry model and the pure derivations that
// give an episode and its parts stable identities: GUIDs, content IDs for
// uploads, part titles and descriptions, and duration formatting.
package episode
