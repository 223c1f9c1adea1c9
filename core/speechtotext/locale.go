package speechtotext

import (
	"context"
	"errors"
)

var (
	// ErrLocaleUnsupported means the transcriber cannot handle the requested
	// locale at all. Not recoverable by retrying.
	ErrLocaleUnsupported = errors.New("locale not supported by transcriber")
	// ErrAssetNotInstalled means the locale is supported but its model assets
	// are not present yet. Recoverable by completing InstallLocale.
	ErrAssetNotInstalled = errors.New("locale model assets not installed")
)

// LocaleInventory is implemented by transcribers whose language models need a
// preflight check before streaming. Cloud transcribers typically report every
// supported locale as installed; on-device ones may require a download.
type LocaleInventory interface {
	IsLocaleSupported(locale string) bool
	IsLocaleInstalled(locale string) bool
	// InstallLocale downloads and installs model assets for the locale. It may
	// take arbitrarily long; progress in [0, 1] is reported through onProgress
	// when non-nil.
	InstallLocale(ctx context.Context, locale string, onProgress func(progress float64)) error
}
