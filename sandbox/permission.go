package sandbox

// PermissionLabel is the optional capability tier named in spec §6's
// public API (`execute(code, context, permissionLabel?)`). It only ever
// narrows the configured filesystem read allow-list for one call; it
// can never widen capabilities beyond what NewExecutor's options grant,
// matching RF-1's deny-by-default posture.
type PermissionLabel string

const (
	// PermissionNone denies filesystem reads for this call even if the
	// Executor was configured with WithAllowedReadPaths.
	PermissionNone PermissionLabel = "none"
	// PermissionReadOnly (the default when no label is given) honors
	// the Executor's configured allowed-read-paths list.
	PermissionReadOnly PermissionLabel = "readonly"
)

// resolveReadPaths narrows cfg's configured allow-list according to
// label. An empty/absent label behaves like PermissionReadOnly.
func resolveReadPaths(cfg *config, label PermissionLabel) []string {
	if label == PermissionNone {
		return nil
	}
	return cfg.allowedReadPaths
}
