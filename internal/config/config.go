package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultConfigPath is the path to the canonical needle defaults file.
const DefaultConfigPath = "config/needle.defaults.json"

// NeedleConfig is the root configuration of the needle force system, read
// once at startup with LoadNeedleConfig. Every field is optional; the Get*
// accessors supply defaults.
type NeedleConfig struct {
	// Force composition
	EngineForceScalar *float64 `json:"engine_force_scalar,omitempty"`
	ModelForceScalar  *float64 `json:"model_force_scalar,omitempty"`
	ForceModel        *string  `json:"force_model,omitempty"` // "kelvin-voigt" | "karnopp"
	EngineAxisOnly    *bool    `json:"engine_axis_only,omitempty"`

	// Puncture detection
	ConstantPunctureThreshold *bool    `json:"constant_puncture_threshold,omitempty"`
	PunctureThreshold         *float64 `json:"puncture_threshold,omitempty"`
	InsideSlack               *float64 `json:"inside_slack,omitempty"`
	MaxContacts               *int     `json:"max_contacts,omitempty"`

	// Kinematics
	VelocityFromAxis *bool `json:"velocity_from_axis,omitempty"`

	// Karnopp friction model
	KarnoppScale *float64       `json:"karnopp_scale,omitempty"`
	Karnopp      *KarnoppConfig `json:"karnopp,omitempty"`

	// Per-tissue parameters, keyed by scene object name.
	Tissues map[string]TissueConfig `json:"tissues,omitempty"`

	// Host scene object names
	Scene *SceneConfig `json:"scene,omitempty"`

	// Process
	DBPath *string `json:"db_path,omitempty"`
	Listen *string `json:"listen,omitempty"`
}

// KarnoppConfig holds the bidirectional Karnopp coefficients.
type KarnoppConfig struct {
	PositiveStatic  *float64 `json:"d_p,omitempty"`            // N/m
	NegativeStatic  *float64 `json:"d_n,omitempty"`            // N/m
	PositiveDamping *float64 `json:"b_p,omitempty"`            // N·s/m²
	NegativeDamping *float64 `json:"b_n,omitempty"`            // N·s/m²
	PositiveDynamic *float64 `json:"c_p,omitempty"`            // N/m
	NegativeDynamic *float64 `json:"c_n,omitempty"`            // N/m
	ZeroThreshold   *float64 `json:"zero_threshold,omitempty"` // m/s, dead-zone half width
}

// TissueConfig overrides the physical parameters of one tissue.
type TissueConfig struct {
	Stiffness         *float64 `json:"stiffness,omitempty"`
	PunctureThreshold *float64 `json:"puncture_threshold,omitempty"`
}

// SceneConfig names the host objects the system binds to at session start.
type SceneConfig struct {
	Device           string `json:"device,omitempty"`
	Phantom          string `json:"phantom,omitempty"`
	Needle           string `json:"needle,omitempty"`
	Tip              string `json:"tip,omitempty"`
	ForceGraph       string `json:"force_graph,omitempty"`
	NeedleForceGraph string `json:"needle_force_graph,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyNeedleConfig returns a NeedleConfig with every field unset.
func EmptyNeedleConfig() *NeedleConfig {
	return &NeedleConfig{}
}

// DefaultNeedleConfig returns a config with every field set to its default.
// It mirrors config/needle.defaults.json.
func DefaultNeedleConfig() *NeedleConfig {
	empty := EmptyNeedleConfig()
	k := empty.GetKarnopp()
	scene := empty.GetScene()
	return &NeedleConfig{
		EngineForceScalar:         ptrFloat64(empty.GetEngineForceScalar()),
		ModelForceScalar:          ptrFloat64(empty.GetModelForceScalar()),
		ForceModel:                ptrString(empty.GetForceModel()),
		EngineAxisOnly:            ptrBool(empty.GetEngineAxisOnly()),
		ConstantPunctureThreshold: ptrBool(empty.GetConstantPunctureThreshold()),
		PunctureThreshold:         ptrFloat64(empty.GetPunctureThreshold()),
		InsideSlack:               ptrFloat64(empty.GetInsideSlack()),
		MaxContacts:               ptrInt(empty.GetMaxContacts()),
		VelocityFromAxis:          ptrBool(empty.GetVelocityFromAxis()),
		KarnoppScale:              ptrFloat64(empty.GetKarnoppScale()),
		Karnopp: &KarnoppConfig{
			PositiveStatic:  ptrFloat64(k.PositiveStatic),
			NegativeStatic:  ptrFloat64(k.NegativeStatic),
			PositiveDamping: ptrFloat64(k.PositiveDamping),
			NegativeDamping: ptrFloat64(k.NegativeDamping),
			PositiveDynamic: ptrFloat64(k.PositiveDynamic),
			NegativeDynamic: ptrFloat64(k.NegativeDynamic),
			ZeroThreshold:   ptrFloat64(k.ZeroThreshold),
		},
		Tissues: DefaultTissues(),
		Scene:   &scene,
		DBPath:  ptrString(empty.GetDBPath()),
		Listen:  ptrString(empty.GetListen()),
	}
}

// DefaultTissues returns the phantom's tissue table as shipped in
// config/needle.defaults.json.
func DefaultTissues() map[string]TissueConfig {
	soft := func() TissueConfig {
		return TissueConfig{Stiffness: ptrFloat64(300.0), PunctureThreshold: ptrFloat64(0.01)}
	}
	return map[string]TissueConfig{
		"Fat":    soft(),
		"muscle": soft(),
		"lung":   soft(),
		"bone":   {Stiffness: ptrFloat64(3001.5), PunctureThreshold: ptrFloat64(1.0)},
	}
}

// LoadNeedleConfig loads a NeedleConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadNeedleConfig(path string) (*NeedleConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyNeedleConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching from the current
// directory up to the repository root. Panics if the file cannot be loaded;
// intended for test setup.
func MustLoadDefaultConfig() *NeedleConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadNeedleConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
// An unrecognised force_model is not an error: the force model layer falls
// back to Kelvin-Voigt at runtime.
func (c *NeedleConfig) Validate() error {
	if c.PunctureThreshold != nil && *c.PunctureThreshold < 0 {
		return fmt.Errorf("puncture_threshold must be non-negative, got %f", *c.PunctureThreshold)
	}
	if c.MaxContacts != nil && *c.MaxContacts <= 0 {
		return fmt.Errorf("max_contacts must be positive, got %d", *c.MaxContacts)
	}
	if c.Karnopp != nil && c.Karnopp.ZeroThreshold != nil && *c.Karnopp.ZeroThreshold <= 0 {
		return fmt.Errorf("karnopp.zero_threshold must be positive, got %g", *c.Karnopp.ZeroThreshold)
	}
	for _, name := range c.TissueNames() {
		t := c.Tissues[name]
		if t.Stiffness != nil && *t.Stiffness < 0 {
			return fmt.Errorf("tissue %q: stiffness must be non-negative, got %f", name, *t.Stiffness)
		}
		if t.PunctureThreshold != nil && *t.PunctureThreshold < 0 {
			return fmt.Errorf("tissue %q: puncture_threshold must be non-negative, got %f", name, *t.PunctureThreshold)
		}
	}
	return nil
}

// TissueNames returns the configured tissue names in sorted order.
func (c *NeedleConfig) TissueNames() []string {
	names := make([]string, 0, len(c.Tissues))
	for name := range c.Tissues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEngineForceScalar returns the engine_force_scalar value or the default.
func (c *NeedleConfig) GetEngineForceScalar() float64 {
	if c.EngineForceScalar == nil {
		return 1.0
	}
	return *c.EngineForceScalar
}

// GetModelForceScalar returns the model_force_scalar value or the default.
func (c *NeedleConfig) GetModelForceScalar() float64 {
	if c.ModelForceScalar == nil {
		return 1.0
	}
	return *c.ModelForceScalar
}

// GetForceModel returns the force_model value or the default.
func (c *NeedleConfig) GetForceModel() string {
	if c.ForceModel == nil || *c.ForceModel == "" {
		return "kelvin-voigt"
	}
	return *c.ForceModel
}

// GetEngineAxisOnly returns the engine_axis_only value or the default.
func (c *NeedleConfig) GetEngineAxisOnly() bool {
	if c.EngineAxisOnly == nil {
		return true
	}
	return *c.EngineAxisOnly
}

// GetConstantPunctureThreshold returns the constant_puncture_threshold value or the default.
func (c *NeedleConfig) GetConstantPunctureThreshold() bool {
	if c.ConstantPunctureThreshold == nil {
		return false
	}
	return *c.ConstantPunctureThreshold
}

// GetPunctureThreshold returns the puncture_threshold value or the default.
func (c *NeedleConfig) GetPunctureThreshold() float64 {
	if c.PunctureThreshold == nil {
		return 1.0e-2
	}
	return *c.PunctureThreshold
}

// GetInsideSlack returns the inside_slack value or the default.
func (c *NeedleConfig) GetInsideSlack() float64 {
	if c.InsideSlack == nil {
		return -1.0
	}
	return *c.InsideSlack
}

// GetMaxContacts returns the max_contacts value or the default.
func (c *NeedleConfig) GetMaxContacts() int {
	if c.MaxContacts == nil {
		return 20
	}
	return *c.MaxContacts
}

// GetVelocityFromAxis returns the velocity_from_axis value or the default.
func (c *NeedleConfig) GetVelocityFromAxis() bool {
	if c.VelocityFromAxis == nil {
		return false
	}
	return *c.VelocityFromAxis
}

// GetKarnoppScale returns the karnopp_scale value or the default.
func (c *NeedleConfig) GetKarnoppScale() float64 {
	if c.KarnoppScale == nil {
		return 0.1
	}
	return *c.KarnoppScale
}

// KarnoppValues is the resolved form of KarnoppConfig.
type KarnoppValues struct {
	PositiveStatic  float64
	NegativeStatic  float64
	PositiveDamping float64
	NegativeDamping float64
	PositiveDynamic float64
	NegativeDynamic float64
	ZeroThreshold   float64
}

// GetKarnopp returns the Karnopp coefficients with defaults filled in.
func (c *NeedleConfig) GetKarnopp() KarnoppValues {
	v := KarnoppValues{
		PositiveStatic:  18.45,
		NegativeStatic:  -18.23,
		PositiveDamping: 212.13,
		NegativeDamping: -293.08,
		PositiveDynamic: 10.57,
		NegativeDynamic: -11.96,
		ZeroThreshold:   5.0e-6,
	}
	k := c.Karnopp
	if k == nil {
		return v
	}
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&v.PositiveStatic, k.PositiveStatic)
	set(&v.NegativeStatic, k.NegativeStatic)
	set(&v.PositiveDamping, k.PositiveDamping)
	set(&v.NegativeDamping, k.NegativeDamping)
	set(&v.PositiveDynamic, k.PositiveDynamic)
	set(&v.NegativeDynamic, k.NegativeDynamic)
	set(&v.ZeroThreshold, k.ZeroThreshold)
	return v
}

// GetScene returns the scene object names with defaults filled in.
func (c *NeedleConfig) GetScene() SceneConfig {
	s := SceneConfig{
		Device:           "Dummy_device",
		Phantom:          "_Phantom",
		Needle:           "Needle",
		Tip:              "LWR_tip",
		ForceGraph:       "Force_Graph",
		NeedleForceGraph: "Needle_force_graph",
	}
	if c.Scene == nil {
		return s
	}
	if c.Scene.Device != "" {
		s.Device = c.Scene.Device
	}
	if c.Scene.Phantom != "" {
		s.Phantom = c.Scene.Phantom
	}
	if c.Scene.Needle != "" {
		s.Needle = c.Scene.Needle
	}
	if c.Scene.Tip != "" {
		s.Tip = c.Scene.Tip
	}
	if c.Scene.ForceGraph != "" {
		s.ForceGraph = c.Scene.ForceGraph
	}
	if c.Scene.NeedleForceGraph != "" {
		s.NeedleForceGraph = c.Scene.NeedleForceGraph
	}
	return s
}

// GetDBPath returns the db_path value or the default.
func (c *NeedleConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "needle_sessions.db"
	}
	return *c.DBPath
}

// GetListen returns the listen value or the default.
func (c *NeedleConfig) GetListen() string {
	if c.Listen == nil {
		return ":8081"
	}
	return *c.Listen
}
