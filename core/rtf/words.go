package rtf

// wordClass groups control words by how the parser handles them.
type wordClass int

const (
	classIgnore wordClass = iota
	classFormat
	classParagraph
	classTable
	classFontTable
	classColorTable
	classSymbol
	classDestination
	classDocument
)

// words maps every control word the parser understands to its class. Words
// not listed are ignored; deny-listed words are rejected before lookup.
var words = map[string]wordClass{
	// character formatting
	"b": classFormat, "i": classFormat, "ul": classFormat, "uld": classFormat,
	"uldb": classFormat, "ulw": classFormat, "ulnone": classFormat,
	"strike": classFormat, "striked": classFormat, "plain": classFormat,
	"f": classFormat, "fs": classFormat, "cf": classFormat,

	// paragraph structure
	"par": classParagraph, "pard": classParagraph, "page": classParagraph,
	"sect": classParagraph, "outlinelevel": classParagraph, "ilvl": classParagraph,
	"li": classParagraph, "ri": classParagraph, "brdrb": classParagraph,

	// tables
	"trowd": classTable, "cellx": classTable, "intbl": classTable,
	"cell": classTable, "row": classTable, "nestcell": classTable, "nestrow": classTable,

	// font table
	"fnil": classFontTable, "froman": classFontTable, "fswiss": classFontTable,
	"fmodern": classFontTable, "fscript": classFontTable, "fdecor": classFontTable,
	"ftech": classFontTable, "fbidi": classFontTable,

	// color table
	"red": classColorTable, "green": classColorTable, "blue": classColorTable,

	// symbols
	"line": classSymbol, "tab": classSymbol, "emdash": classSymbol, "endash": classSymbol,
	"bullet": classSymbol, "lquote": classSymbol, "rquote": classSymbol,
	"ldblquote": classSymbol, "rdblquote": classSymbol, "emspace": classSymbol,
	"enspace": classSymbol, "qmspace": classSymbol,

	// destinations
	"fonttbl": classDestination, "colortbl": classDestination, "info": classDestination,
	"title": classDestination, "author": classDestination, "subject": classDestination,
	"operator": classDestination, "keywords": classDestination, "comment": classDestination,
	"doccomm": classDestination, "creatim": classDestination, "revtim": classDestination,
	"printim": classDestination, "buptim": classDestination,
	"stylesheet": classDestination, "listtable": classDestination,
	"listoverridetable": classDestination, "rsidtbl": classDestination,
	"header": classDestination, "headerl": classDestination, "headerr": classDestination,
	"headerf": classDestination, "footer": classDestination, "footerl": classDestination,
	"footerr": classDestination, "footerf": classDestination, "footnote": classDestination,
	"pict": classDestination, "listtext": classDestination, "pntext": classDestination,
	"pn": classDestination, "generator": classDestination, "xmlnstbl": classDestination,
	"themedata": classDestination, "colorschememapping": classDestination,
	"latentstyles": classDestination, "datastore": classDestination,

	// document settings
	"rtf": classDocument, "ansi": classDocument, "mac": classDocument,
	"pc": classDocument, "pca": classDocument, "ansicpg": classDocument,
	"deff": classDocument,
}

// symbols maps symbol words and control symbols to the text they insert.
var symbols = map[string]string{
	"line":      "\n",
	"tab":       "\t",
	"emdash":    string(rune(0x2014)),
	"endash":    string(rune(0x2013)),
	"bullet":    string(rune(0x2022)),
	"lquote":    string(rune(0x2018)),
	"rquote":    string(rune(0x2019)),
	"ldblquote": string(rune(0x201C)),
	"rdblquote": string(rune(0x201D)),
	"emspace":   string(rune(0x2003)),
	"enspace":   string(rune(0x2002)),
	"qmspace":   string(rune(0x2005)),
	"~":         string(rune(0x00A0)),
	"_":         string(rune(0x2011)),
	"-":         "",
}

// destination is where text in the current group goes.
type destination int

const (
	destBody destination = iota
	destSkip
	destFontTable
	destColorTable
	destInfo
	destTitle
	destAuthor
	destListText
	destPict
)

// destinations maps destination words to their handling. Unlisted
// destinations are skipped.
var destinations = map[string]destination{
	"fonttbl":  destFontTable,
	"colortbl": destColorTable,
	"info":     destInfo,
	"title":    destTitle,
	"author":   destAuthor,
	"listtext": destListText,
	"pntext":   destListText,
	"pict":     destPict,
}

// codePageFor maps the character set words to their code page.
var codePageFor = map[string]int{
	"ansi": 1252,
	"mac":  10000,
	"pc":   437,
	"pca":  850,
}
