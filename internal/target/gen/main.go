// Command gen reads targets/*.yaml and writes
// internal/target/zz_generated_targets.go. Invoked via `go generate` from
// the module root:
//
//	//go:generate go run ./internal/target/gen -out internal/target/zz_generated_targets.go targets
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"os"
	"text/template"

	"github.com/arm-debug/probeutil/internal/target"
)

var tmpl = template.Must(template.New("targets").Funcs(template.FuncMap{
	"hex":     func(v uint32) string { return fmt.Sprintf("0x%x", v) },
	"hex8":    func(v uint8) string { return fmt.Sprintf("0x%x", v) },
	"hex16":   func(v uint16) string { return fmt.Sprintf("0x%x", v) },
	"deref":   func(v *uint32) uint32 { return *v },
	"deref16": func(v *uint16) uint16 { return *v },
}).Parse(`// Code generated by internal/target/gen from {{.SourceDir}}. DO NOT EDIT.

package target

func pc(addr uint32) *uint32     { return &addr }
func pu16(part uint16) *uint16 { return &part }

// Generated returns the chip descriptions compiled in at build time.
func Generated() []ChipFamily {
	return []ChipFamily{
{{- range .Families}}
		{
			Name: {{printf "%q" .Name}},
			Targets: []Target{
{{- range .Targets}}
				{
					Name:         {{printf "%q" .Name}},
					CoreKind:     {{printf "%q" .CoreKind}},
					Manufacturer: Manufacturer{CC: {{hex8 .Manufacturer.CC}}, ID: {{hex8 .Manufacturer.ID}}},
					{{if .Part}}Part: pu16({{hex16 (deref16 .Part)}}),{{end}}
					Regions: []MemoryRegion{
{{- range .Regions}}
						{Kind: {{if eq .Kind.String "flash"}}RegionFlash{{else}}RegionRAM{{end}}, Name: {{printf "%q" .Name}}, Start: {{hex .Start}}, End: {{hex .End}}, IsBootMemory: {{.IsBootMemory}}, SectorSize: {{hex .SectorSize}}, PageSize: {{hex .PageSize}}, ErasedByteValue: {{.ErasedByteValue}}},
{{- end}}
					},
					Algorithms: []FlashAlgorithm{
{{- range .Algorithms}}
						{
							Name:        {{printf "%q" .Name}},
							LoadAddress: {{hex .LoadAddress}},
							BeginStack:  {{hex .BeginStack}},
							BeginData:   {{hex .BeginData}},
							StaticBase:  {{hex .StaticBase}},
							PageBuffers: []uint32{ {{range .PageBuffers}}{{hex .}}, {{end}} },
							Instructions: []uint32{ {{range .Instructions}}{{hex .}}, {{end}} },
							{{if .PCInit}}PCInit: pc({{hex (deref .PCInit)}}),{{end}}
							{{if .PCUnInit}}PCUnInit: pc({{hex (deref .PCUnInit)}}),{{end}}
							{{if .PCEraseAll}}PCEraseAll: pc({{hex (deref .PCEraseAll)}}),{{end}}
							PCEraseSector: {{hex .PCEraseSector}},
							PCProgramPage: {{hex .PCProgramPage}},
							DataSectionOffset: {{hex .DataSectionOffset}},
						},
{{- end}}
					},
					DefaultAlg: {{printf "%q" .DefaultAlg}},
				},
{{- end}}
			},
		},
{{- end}}
	}
}
`))

func main() {
	out := flag.String("out", "internal/target/zz_generated_targets.go", "output file")
	flag.Parse()
	dir := "targets"
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	families, err := target.LoadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gen:", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct {
		SourceDir string
		Families  []target.ChipFamily
	}{SourceDir: dir, Families: families}); err != nil {
		fmt.Fprintln(os.Stderr, "gen: render:", err)
		os.Exit(1)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		fmt.Fprintln(os.Stderr, "gen: gofmt:", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, formatted, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "gen: write:", err)
		os.Exit(1)
	}
}
