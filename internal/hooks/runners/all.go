// Package runners imports all hook implementations to trigger their init()
// registration.
package runners

import (
	_ "github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks/dryrun"
	_ "github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks/shell"
)
