// Package reminder holds the data model shared by the scheduling core:
// the closed set of notification types, the trigger union, registry entries,
// delivery content and the error taxonomy.
package reminder
