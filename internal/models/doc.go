// Package models defines the domain entities shared by the stash services.
//
// The package contains two categories of types:
//
// 1. Persistent records, stored by the repositories package:
//   - [Credential] : a user's catalog access and refresh tokens with their expiry
//   - [AcquisitionRecord] : a track whose audio has been converted and stored for a user
//   - [CatalogTrack] : catalog track metadata, also mirrored locally on a best-effort basis
//
// 2. Wire DTOs exchanged with external services:
//   - [Profile] : the authorized catalog user
//   - [Conversion] and [ConversionData] : the conversion provider's response body
package models
