package cogview

// Size is a raster's pixel dimensions.
type Size struct {
	Width  int
	Height int
}

// Rect is a rectangle in pixel space of one resolution level.
type Rect struct {
	X      int // X coordinate of top-left corner
	Y      int // Y coordinate of top-left corner
	Width  int
	Height int
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Attribute table column usages, numbered as GDAL numbers them.
const (
	UsageGeneric    = 0
	UsagePixelCount = 1
	UsageName       = 2
	UsageMin        = 3
	UsageMax        = 4
	UsageMinMax     = 5
	UsageRed        = 6
	UsageGreen      = 7
	UsageBlue       = 8
	UsageAlpha      = 9
)

// Metadata keys read from raster bands.
const (
	KeyLayerType      = "LAYER_TYPE"
	KeyMinimum        = "STATISTICS_MINIMUM"
	KeyMaximum        = "STATISTICS_MAXIMUM"
	KeyMean           = "STATISTICS_MEAN"
	KeyStdDev         = "STATISTICS_STDDEV"
	KeyHistoMin       = "STATISTICS_HISTOMIN"
	KeyHistoMax       = "STATISTICS_HISTOMAX"
	KeyHistoBinValues = "STATISTICS_HISTOBINVALUES"

	LayerThematic  = "thematic"
	LayerAthematic = "athematic"
)

// AttributeTable is a raster attribute table attached to a classified band.
// Row i describes pixel value i.
type AttributeTable interface {
	RowCount() int
	ColumnCount() int
	// ColumnUsage returns one of the Usage* constants for column col.
	ColumnUsage(col int) int
	// IntColumn reads every row of column col as integers.
	IntColumn(col int) ([]int, error)
}

// Band is one band of an open dataset.
type Band interface {
	// Metadata returns the value stored under key and whether it exists.
	Metadata(key string) (string, bool)
	// AttributeTable returns the band's attribute table or nil.
	AttributeTable() AttributeTable
	// Read samples src of the given level into dst, scaling it to
	// dstWidth x dstHeight samples laid out with the given row stride.
	// Samples outside that region are left untouched.
	Read(level ResolutionLevel, src Rect, dst []float64, dstWidth, dstHeight, stride int) error
}

// Dataset is an open raster. A session owns its dataset exclusively.
type Dataset interface {
	BandCount() int
	Size() Size
	// Geotransform returns the full resolution affine transform and false
	// when the dataset is not georeferenced.
	Geotransform() (Geotransform, bool)
	// Overviews lists the pyramid levels from finest to coarsest.
	Overviews() []Size
	// Band returns the 1-based band i, or nil when it does not exist.
	Band(i int) Band
	Close() error
}

// Opener opens a dataset by file name or URL.
type Opener func(name string) (Dataset, error)
