package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the glyphs used by the CLI views.
type SymbolSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	ArrowR  string
	Bullet  string
}

var unicodeSymbols = SymbolSet{
	Success: "✓",
	Error:   "✗",
	Warning: "⚠",
	Info:    "●",
	ArrowR:  "→",
	Bullet:  "•",
}

var asciiSymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	Info:    "[i]",
	ArrowR:  "->",
	Bullet:  "*",
}

var (
	SymbolSuccess = unicodeSymbols.Success
	SymbolError   = unicodeSymbols.Error
	SymbolWarning = unicodeSymbols.Warning
	SymbolInfo    = unicodeSymbols.Info
	SymbolArrowR  = unicodeSymbols.ArrowR
	SymbolBullet  = unicodeSymbols.Bullet
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// BIZPLAN_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("BIZPLAN_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}
	return true
}

// InitSymbols sets the Symbol* variables from terminal capabilities.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}
	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolInfo = set.Info
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
}

func init() {
	InitSymbols()
}
