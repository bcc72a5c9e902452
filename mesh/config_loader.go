package mesh

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values a run depends on.
func (c *Config) Validate() error {
	cam := c.Camera
	if cam.FX <= 0 || cam.FY <= 0 {
		return fmt.Errorf("camera.fx and camera.fy must be positive")
	}
	if cam.DepthScale <= 0 {
		return fmt.Errorf("camera.depthScale must be positive")
	}

	seg := c.Segmentation
	if seg.MaxPlanes < 0 || seg.MaxPlanes >= int(UnassignedLabel) {
		return fmt.Errorf("segmentation.maxPlanes must be between 0 and %d", UnassignedLabel-1)
	}
	if seg.MinArea < 0 {
		return fmt.Errorf("segmentation.minArea must not be negative")
	}
	if seg.MinPoints < 0 {
		return fmt.Errorf("segmentation.minPoints must not be negative")
	}
	switch seg.Labeler {
	case "", LabelerUnionFind, LabelerGocv:
	default:
		return fmt.Errorf("segmentation.labeler %q is not one of %q, %q", seg.Labeler, LabelerUnionFind, LabelerGocv)
	}

	for i, f := range c.Export.Formats {
		if f != FormatOBJ && f != FormatSTL {
			return fmt.Errorf("export.formats[%d] %q is not one of %q, %q", i, f, FormatOBJ, FormatSTL)
		}
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
