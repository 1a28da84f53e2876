package target_test

import (
	"testing"

	"github.com/arm-debug/probeutil/internal/target"
)

func samplePCs() (init, uninit, eraseAll, eraseSector, programPage uint32) {
	return 0x2000_1004, 0x2000_1008, 0x2000_100C, 0x2000_1010, 0x2000_1014
}

func sampleTarget() target.Target {
	pcInit, pcUnInit, pcEraseAll, pcEraseSector, pcProgramPage := samplePCs()
	return target.Target{
		Name:     "Nrf51822",
		CoreKind: "cortex-m0",
		Regions: []target.MemoryRegion{
			{Kind: target.RegionRAM, Name: "ram", Start: 0x2000_0000, End: 0x2000_4000, IsBootMemory: true},
			{Kind: target.RegionFlash, Name: "flash", Start: 0, End: 0x4_0000, SectorSize: 0x400, PageSize: 0x400, ErasedByteValue: 0xFF},
		},
		Algorithms: []target.FlashAlgorithm{
			{
				Name:         "nrf51xxx",
				Instructions: make([]uint32, 12),
				LoadAddress:  0x2000_1000,
				BeginStack:   0x2000_2000,
				BeginData:    0x2000_2400,
				StaticBase:   0x2000_0200,
				PageBuffers:  []uint32{0x2000_2800},
				PCInit:        &pcInit,
				PCUnInit:      &pcUnInit,
				PCEraseAll:    &pcEraseAll,
				PCEraseSector: pcEraseSector,
				PCProgramPage: pcProgramPage,
			},
		},
		DefaultAlg: "nrf51xxx",
	}
}

func TestCanonicalizeLowercasesName(t *testing.T) {
	tg := sampleTarget()
	tg.Canonicalize()
	if tg.Name != "nrf51822" {
		t.Fatalf("got %q, want lower-cased name", tg.Name)
	}
}

func TestValidateAcceptsWellFormedTarget(t *testing.T) {
	tg := sampleTarget()
	if err := tg.Validate(); err != nil {
		t.Fatalf("expected valid target, got %v", err)
	}
}

func TestValidateRejectsOverlappingRegions(t *testing.T) {
	tg := sampleTarget()
	tg.Regions = append(tg.Regions, target.MemoryRegion{
		Kind: target.RegionRAM, Name: "ram-overlap", Start: 0x2000_1000, End: 0x2000_5000,
	})
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected overlap error")
	}
}

func TestValidateRejectsSectorSizeNotMultipleOfPageSize(t *testing.T) {
	tg := sampleTarget()
	tg.Regions[1].PageSize = 0x300
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected sector_size/page_size error")
	}
}

func TestValidateRejectsEntryPointOutsideBlob(t *testing.T) {
	tg := sampleTarget()
	bad := uint32(0x2000_9999)
	tg.Algorithms[0].PCInit = &bad
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected entry point out of range error")
	}
}

func TestValidateRejectsPageBufferOutsideRAM(t *testing.T) {
	tg := sampleTarget()
	bad := uint32(0x1000_0000)
	tg.Algorithms[0].PageBuffers = []uint32{bad}
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected page buffer outside RAM error")
	}
}

func TestValidateRejectsMissingMandatoryEntryPoint(t *testing.T) {
	tg := sampleTarget()
	tg.Algorithms[0].PCEraseSector = 0
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected missing pc_erase_sector error")
	}

	tg = sampleTarget()
	tg.Algorithms[0].PCProgramPage = 0
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected missing pc_program_page error")
	}
}

func TestValidateRejectsOverlappingRAMPoints(t *testing.T) {
	tg := sampleTarget()
	tg.Algorithms[0].BeginData = tg.Algorithms[0].BeginStack
	if err := tg.Validate(); err == nil {
		t.Fatalf("expected begin_stack/begin_data collision error")
	}
}

func TestDefaultAlgorithmResolvesMarkedDefault(t *testing.T) {
	tg := sampleTarget()
	alg, err := tg.DefaultAlgorithm()
	if err != nil {
		t.Fatalf("default algorithm: %v", err)
	}
	if alg.Name != "nrf51xxx" {
		t.Fatalf("got %q, want nrf51xxx", alg.Name)
	}
}

func TestGeneratedTargetsValidate(t *testing.T) {
	for _, family := range target.Generated() {
		for _, tg := range family.Targets {
			if err := tg.Validate(); err != nil {
				t.Fatalf("generated target %q invalid: %v", tg.Name, err)
			}
		}
	}
}
