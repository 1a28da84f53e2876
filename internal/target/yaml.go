package target

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/arm-debug/probeutil/internal/xerrors"
)

// yamlChipFamily is the on-disk shape of one targets/*.yaml file: one
// family per file, a manufacturer and core kind shared by its variants,
// and one or more named flash algorithms shared across variants. Each
// variant carries its own part number and memory map, since two variants
// of one family commonly differ in flash/RAM size.
type yamlChipFamily struct {
	Name         string           `yaml:"name"`
	Manufacturer yamlManufacturer `yaml:"manufacturer"`
	Core         string           `yaml:"core"`
	Algorithms   []yamlAlgorithm  `yaml:"flash_algorithms"`
	Variants     []yamlVariant    `yaml:"variants"`
}

type yamlManufacturer struct {
	CC uint8 `yaml:"cc"`
	ID uint8 `yaml:"id"`
}

type yamlVariant struct {
	Name      string       `yaml:"name"`
	Part      *uint16      `yaml:"part"`
	MemoryMap []yamlRegion `yaml:"memory_map"`
}

type yamlRange struct {
	Start uint32 `yaml:"start"`
	End   uint32 `yaml:"end"`
}

type yamlRegion struct {
	RAM   *yamlRAMRegion   `yaml:"Ram"`
	Flash *yamlFlashRegion `yaml:"Flash"`
}

type yamlRAMRegion struct {
	Range        yamlRange `yaml:"range"`
	IsBootMemory bool      `yaml:"is_boot_memory"`
}

type yamlFlashRegion struct {
	Range           yamlRange `yaml:"range"`
	IsBootMemory    bool      `yaml:"is_boot_memory"`
	SectorSize      uint32    `yaml:"sector_size"`
	PageSize        uint32    `yaml:"page_size"`
	ErasedByteValue byte      `yaml:"erased_byte_value"`
}

type yamlAlgorithm struct {
	Name              string   `yaml:"name"`
	Default           bool     `yaml:"default"`
	Instructions      []uint32 `yaml:"instructions"`
	LoadAddress       uint32   `yaml:"load_address"`
	BeginStack        uint32   `yaml:"begin_stack"`
	BeginData         uint32   `yaml:"begin_data"`
	StaticBase        uint32   `yaml:"static_base"`
	PageBuffers       []uint32 `yaml:"page_buffers"`
	PCInit            *uint32  `yaml:"pc_init"`
	PCUnInit          *uint32  `yaml:"pc_uninit"`
	PCEraseAll        *uint32  `yaml:"pc_erase_all"`
	PCEraseSector     uint32   `yaml:"pc_erase_sector"`
	PCProgramPage     uint32   `yaml:"pc_program_page"`
	DataSectionOffset uint32   `yaml:"data_section_offset"`
}

// LoadDir reads every *.yaml/*.yml file under dir and returns one
// ChipFamily per file, for callers that want to load descriptors from disk
// instead of compiling them in via the generated
// target/zz_generated_targets.go.
func LoadDir(dir string) ([]ChipFamily, error) {
	var families []ChipFamily
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		family, ferr := loadFile(path)
		if ferr != nil {
			return ferr
		}
		families = append(families, family)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("target: load %s: %w", dir, err)
	}
	return families, nil
}

func loadFile(path string) (ChipFamily, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ChipFamily{}, fmt.Errorf("target: read %s: %w", path, err)
	}
	var y yamlChipFamily
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return ChipFamily{}, fmt.Errorf("target: parse %s: %w", path, err)
	}
	return decodeFamily(y, path)
}

func decodeFamily(y yamlChipFamily, path string) (ChipFamily, error) {
	algs, err := decodeAlgorithms(y.Algorithms)
	if err != nil {
		return ChipFamily{}, fmt.Errorf("target: %s: %w", path, err)
	}

	var defaultName string
	for i, a := range y.Algorithms {
		if a.Default {
			defaultName = algs[i].Name
		}
	}

	manufacturer := Manufacturer{CC: y.Manufacturer.CC, ID: y.Manufacturer.ID}

	family := ChipFamily{Name: y.Name}
	variants := y.Variants
	if len(variants) == 0 {
		variants = []yamlVariant{{Name: y.Name}}
	}
	for _, v := range variants {
		regions, err := decodeRegions(v.MemoryMap)
		if err != nil {
			return ChipFamily{}, fmt.Errorf("target: %s: variant %s: %w", path, v.Name, err)
		}
		t := Target{
			Name:         v.Name,
			CoreKind:     y.Core,
			Manufacturer: manufacturer,
			Part:         v.Part,
			Regions:      regions,
			Algorithms:   algs,
			DefaultAlg:   defaultName,
		}
		t.Canonicalize()
		if err := t.Validate(); err != nil {
			return ChipFamily{}, err
		}
		family.Targets = append(family.Targets, t)
	}
	return family, nil
}

func decodeRegions(in []yamlRegion) ([]MemoryRegion, error) {
	out := make([]MemoryRegion, 0, len(in))
	for i, r := range in {
		switch {
		case r.RAM != nil:
			out = append(out, MemoryRegion{
				Kind:         RegionRAM,
				Name:         fmt.Sprintf("ram%d", i),
				Start:        r.RAM.Range.Start,
				End:          r.RAM.Range.End,
				IsBootMemory: r.RAM.IsBootMemory,
			})
		case r.Flash != nil:
			out = append(out, MemoryRegion{
				Kind:            RegionFlash,
				Name:            fmt.Sprintf("flash%d", i),
				Start:           r.Flash.Range.Start,
				End:             r.Flash.Range.End,
				IsBootMemory:    r.Flash.IsBootMemory,
				SectorSize:      r.Flash.SectorSize,
				PageSize:        r.Flash.PageSize,
				ErasedByteValue: r.Flash.ErasedByteValue,
			})
		default:
			return nil, xerrors.New(xerrors.KindTargetSelection, fmt.Errorf("memory_map[%d]: neither Ram nor Flash set", i))
		}
	}
	return out, nil
}

func decodeAlgorithms(in []yamlAlgorithm) ([]FlashAlgorithm, error) {
	out := make([]FlashAlgorithm, 0, len(in))
	for _, a := range in {
		out = append(out, FlashAlgorithm{
			Name:              strings.ToLower(a.Name),
			Instructions:      a.Instructions,
			LoadAddress:       a.LoadAddress,
			BeginStack:        a.BeginStack,
			BeginData:         a.BeginData,
			StaticBase:        a.StaticBase,
			PageBuffers:       a.PageBuffers,
			PCInit:            a.PCInit,
			PCUnInit:          a.PCUnInit,
			PCEraseAll:        a.PCEraseAll,
			PCEraseSector:     a.PCEraseSector,
			PCProgramPage:     a.PCProgramPage,
			DataSectionOffset: a.DataSectionOffset,
		})
	}
	return out, nil
}
