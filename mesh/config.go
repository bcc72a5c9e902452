package mesh

// CameraConfig holds the pinhole intrinsics and the depth unit of the sensor.
type CameraConfig struct {
	FX         float64 `yaml:"fx" json:"fx"`
	FY         float64 `yaml:"fy" json:"fy"`
	CX         float64 `yaml:"cx" json:"cx"`
	CY         float64 `yaml:"cy" json:"cy"`
	DepthScale float64 `yaml:"depthScale" json:"depthScale"` // metres per raw depth unit
}

// Intrinsics returns the back-projection parameters.
func (c CameraConfig) Intrinsics() Intrinsics {
	return Intrinsics{FX: c.FX, FY: c.FY, CX: c.CX, CY: c.CY}
}

// SegmentationConfig tunes the segmentation pipeline.
type SegmentationConfig struct {
	MaxPlanes        int     `yaml:"maxPlanes" json:"maxPlanes"`
	MinArea          int     `yaml:"minArea" json:"minArea"`
	MinPoints        int     `yaml:"minPoints" json:"minPoints"`
	PlaneThreshold   float64 `yaml:"planeThreshold" json:"planeThreshold"` // metres
	RANSACIterations int     `yaml:"ransacIterations" json:"ransacIterations"`
	MinPlaneInliers  int     `yaml:"minPlaneInliers" json:"minPlaneInliers"`
	Seed             int64   `yaml:"seed" json:"seed"`
	DepthDiff        float64 `yaml:"depthDiff" json:"depthDiff"` // metres, face tolerance
	Labeler          string  `yaml:"labeler" json:"labeler"`     // "unionfind" or "gocv"
}

// ExportConfig controls which artifacts a run writes.
type ExportConfig struct {
	Dir      string   `yaml:"dir" json:"dir"`
	Formats  []string `yaml:"formats" json:"formats"` // obj, stl
	Previews bool     `yaml:"previews" json:"previews"`
	GeoJSON  bool     `yaml:"geojson" json:"geojson"`
}

// HasFormat reports whether format is enabled.
func (e ExportConfig) HasFormat(format string) bool {
	for _, f := range e.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// CatalogConfig points at the SQLite export catalog. An empty path disables it.
type CatalogConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Config represents the full configuration file
type Config struct {
	Camera       CameraConfig       `yaml:"camera" json:"camera"`
	Segmentation SegmentationConfig `yaml:"segmentation" json:"segmentation"`
	Export       ExportConfig       `yaml:"export" json:"export"`
	MQTT         MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	Catalog      CatalogConfig      `yaml:"catalog" json:"catalog"`
}

// DefaultConfig returns the configuration used when no file is given. The
// camera values are those of a Kinect-class sensor reporting millimetres.
func DefaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			FX:         525,
			FY:         525,
			CX:         319.5,
			CY:         239.5,
			DepthScale: 0.001,
		},
		Segmentation: SegmentationConfig{
			MaxPlanes:        3,
			MinArea:          100,
			MinPoints:        100,
			PlaneThreshold:   DefaultPlaneThreshold,
			RANSACIterations: DefaultRANSACIterations,
			MinPlaneInliers:  DefaultMinPlaneInliers,
			Seed:             1,
			DepthDiff:        DefaultDepthDiff,
			Labeler:          LabelerUnionFind,
		},
		Export: ExportConfig{
			Dir:      "out",
			Formats:  []string{FormatOBJ},
			Previews: true,
			GeoJSON:  true,
		},
		MQTT: MQTTConfig{
			PublishPrefix: "rgbdmesh",
			ClientID:      "rgbdmesh",
		},
	}
}

const (
	LabelerUnionFind = "unionfind"
	LabelerGocv      = "gocv"

	FormatOBJ = "obj"
	FormatSTL = "stl"
)
