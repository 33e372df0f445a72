// Package ir provides the document model shared by the RTF and Markdown
// parsers and generators.
//
// # Core Types
//
//   - Document: ordered blocks plus the font table, color table and metadata
//   - Block: a paragraph, heading, list item, table, code block, quote or rule
//   - Run: a span of text with uniform character formatting
//
// Tables own rows of cells and each cell owns its own blocks, so the model is
// a tree. Line breaks inside a block are stored as "\n" in run text.
//
// # Formatting References
//
// A Run refers to fonts and colors by index. Every index a Run uses must
// exist in the owning Document's tables; parsers drop references they cannot
// resolve and report them instead of storing them.
//
// # Loss Classification
//
// Every conversion is classified by fidelity:
//
//   - L0: Lossless
//   - L1: Semantically lossless, formatting may differ
//   - L2: Minor loss (fonts, sizes, colors, underline)
//   - L3: Significant loss (embedded pictures replaced by placeholders)
//   - L4: Plain text only
//
// # Content Addressing
//
// Outputs and template definitions are fingerprinted with BLAKE3.
package ir
