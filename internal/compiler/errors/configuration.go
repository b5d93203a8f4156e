package errors

import "fmt"

// Configuration error codes (CFG800-899) - detected before graph work begins.
const (
	// ErrDuplicateType indicates two distinct op variants share a (name, version).
	ErrDuplicateType ErrorCode = "CFG801"
	// ErrRegistrySealed indicates a registration after the registry was sealed.
	ErrRegistrySealed ErrorCode = "CFG802"
	// ErrDuplicateName indicates a friendly name already used in the graph.
	ErrDuplicateName ErrorCode = "CFG803"
	// ErrDuplicatePass indicates a pass type registered twice in one manager.
	ErrDuplicatePass ErrorCode = "CFG804"
	// ErrGraphInUse indicates a graph already owned by another manager run.
	ErrGraphInUse ErrorCode = "CFG805"
	// ErrDisabledOpRemaining indicates a node type disabled for the target survived the run.
	ErrDisabledOpRemaining ErrorCode = "CFG806"
	// ErrForeignGraph indicates validation requested on a graph the manager does not own.
	ErrForeignGraph ErrorCode = "CFG807"
	// ErrInvalidConfig indicates an invalid configuration value.
	ErrInvalidConfig ErrorCode = "CFG808"
	// ErrUnknownType indicates a lookup of an unregistered op or pass type.
	ErrUnknownType ErrorCode = "CFG809"
	// ErrForeignNode indicates a node or output that does not belong to the graph.
	ErrForeignNode ErrorCode = "CFG810"
	// ErrNodeInUse indicates removal of a node that still has consumers.
	ErrNodeInUse ErrorCode = "CFG811"
	// ErrInvalidGraph indicates a malformed graph description.
	ErrInvalidGraph ErrorCode = "CFG812"
)

var (
	// DuplicateType is a sentinel for errors.Is checks against CFG801.
	DuplicateType = sentinel(ErrDuplicateType)
	// RegistrySealed is a sentinel for errors.Is checks against CFG802.
	RegistrySealed = sentinel(ErrRegistrySealed)
	// DuplicateName is a sentinel for errors.Is checks against CFG803.
	DuplicateName = sentinel(ErrDuplicateName)
	// DuplicatePass is a sentinel for errors.Is checks against CFG804.
	DuplicatePass = sentinel(ErrDuplicatePass)
	// GraphInUse is a sentinel for errors.Is checks against CFG805.
	GraphInUse = sentinel(ErrGraphInUse)
	// DisabledOpRemaining is a sentinel for errors.Is checks against CFG806.
	DisabledOpRemaining = sentinel(ErrDisabledOpRemaining)
	// ForeignGraph is a sentinel for errors.Is checks against CFG807.
	ForeignGraph = sentinel(ErrForeignGraph)
	// InvalidConfig is a sentinel for errors.Is checks against CFG808.
	InvalidConfig = sentinel(ErrInvalidConfig)
	// UnknownType is a sentinel for errors.Is checks against CFG809.
	UnknownType = sentinel(ErrUnknownType)
	// ForeignNode is a sentinel for errors.Is checks against CFG810.
	ForeignNode = sentinel(ErrForeignNode)
	// NodeInUse is a sentinel for errors.Is checks against CFG811.
	NodeInUse = sentinel(ErrNodeInUse)
	// InvalidGraph is a sentinel for errors.Is checks against CFG812.
	InvalidGraph = sentinel(ErrInvalidGraph)
)

// NewDuplicateType creates a CFG801 error.
func NewDuplicateType(name string, version uint64) *CompilerError {
	return newError(
		ErrDuplicateType,
		"duplicate_type",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Discrete type %s version %d is already registered by a different op variant", name, version),
	).WithSuggestion("Give the new op variant a distinct version")
}

// NewRegistrySealed creates a CFG802 error.
func NewRegistrySealed(name string) *CompilerError {
	return newError(
		ErrRegistrySealed,
		"registry_sealed",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Cannot register %s: registry is sealed", name),
	).WithSuggestion("Register every op variant during startup, before sealing")
}

// NewDuplicateName creates a CFG803 error.
func NewDuplicateName(name string) *CompilerError {
	return newError(
		ErrDuplicateName,
		"duplicate_name",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Friendly name '%s' is already used in this graph", name),
	)
}

// NewDuplicatePass creates a CFG804 error.
func NewDuplicatePass(name string) *CompilerError {
	return newError(
		ErrDuplicatePass,
		"duplicate_pass",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Pass %s is already registered with this manager", name),
	)
}

// NewGraphInUse creates a CFG805 error.
func NewGraphInUse(graphID string) *CompilerError {
	return newError(
		ErrGraphInUse,
		"graph_in_use",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Graph %s is already being transformed by another manager", graphID),
	).WithSuggestion("Clone the graph to transform it concurrently")
}

// NewDisabledOpRemaining creates a CFG806 error.
func NewDisabledOpRemaining(op string, nodes []string) *CompilerError {
	return newError(
		ErrDisabledOpRemaining,
		"disabled_op_remaining",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Op type %s is disabled for the target but %d node(s) remain", op, len(nodes)),
	).WithActual(fmt.Sprintf("%v", nodes))
}

// NewForeignGraph creates a CFG807 error.
func NewForeignGraph(graphID string) *CompilerError {
	return newError(
		ErrForeignGraph,
		"foreign_graph",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Validation requested for graph %s which is not owned by the running manager", graphID),
	)
}

// NewInvalidConfig creates a CFG808 error.
func NewInvalidConfig(key, reason string) *CompilerError {
	return newError(
		ErrInvalidConfig,
		"invalid_config",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Invalid configuration for '%s': %s", key, reason),
	)
}

// NewUnknownType creates a CFG809 error.
func NewUnknownType(kind, name string) *CompilerError {
	return newError(
		ErrUnknownType,
		"unknown_type",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Unknown %s '%s'", kind, name),
	)
}

// NewForeignNode creates a CFG810 error.
func NewForeignNode(name string) *CompilerError {
	return newError(
		ErrForeignNode,
		"foreign_node",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Node '%s' does not belong to this graph", name),
	)
}

// NewNodeInUse creates a CFG811 error.
func NewNodeInUse(name string, consumers int) *CompilerError {
	return newError(
		ErrNodeInUse,
		"node_in_use",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Node '%s' still has %d consumer(s)", name, consumers),
	).WithSuggestion("Replace the node's outputs before removing it")
}

// NewInvalidGraph creates a CFG812 error.
func NewInvalidGraph(graph, reason string) *CompilerError {
	return newError(
		ErrInvalidGraph,
		"invalid_graph",
		CategoryConfiguration,
		SeverityError,
		fmt.Sprintf("Invalid graph description '%s': %s", graph, reason),
	)
}
