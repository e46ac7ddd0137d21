package exitcodes

// Exit codes for emptysweep
// Any failure is non-zero; nothing-removed and items-removed both exit Success
const (
	Success      = 0 // Run completed and report printed
	InvalidUsage = 2 // Bad flags, arguments or configuration file
	RuntimeError = 4 // Traversal or removal failed mid-run
)
