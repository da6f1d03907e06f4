package generator

import (
	"bytes"
	"embed"
	"fmt"
	"go/types"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/imports"
)

var (
	//go:embed templates/*
	templates embed.FS
)

// dispatchPath is the import path of the package defining Selector and
// Pointer.
const dispatchPath = "github.com/jerbob92/wazero-dispatch"

type Options struct {
	// Dir is the directory of the package holding the types.
	Dir string

	// FileName is a file of the package, as given by go:generate in $GOFILE.
	// The package in Dir is used when it is empty.
	FileName string

	TypeNames []string
	OutputDir string
	Verbose   bool
}

func Generate(options Options) error {
	pattern := "."
	if options.FileName != "" {
		// file= queries are resolved against the working directory, not Dir.
		fileName := options.FileName
		if !filepath.IsAbs(fileName) {
			fileName = filepath.Join(options.Dir, fileName)
		}
		pattern = fmt.Sprintf("file=%s", fileName)
	}

	pkgs, err := packages.Load(&packages.Config{
		Dir:  options.Dir,
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedTypesSizes,
	}, pattern)
	if err != nil {
		return err
	}
	if len(pkgs) == 0 {
		return fmt.Errorf("no package found for %s", pattern)
	}
	if len(pkgs[0].Errors) > 0 {
		return fmt.Errorf("could not load package %s: %v", pkgs[0].PkgPath, pkgs[0].Errors[0])
	}

	pkg := pkgs[0]
	templates, err := template.New("").
		Funcs(TemplateFunctions). // Custom functions
		ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		panic(err)
	}

	qualifier := func(other *types.Package) string {
		if other == pkg.Types {
			return ""
		}
		return other.Name()
	}

	for _, typeName := range options.TypeNames {
		typeName = strings.TrimSpace(typeName)
		obj := pkg.Types.Scope().Lookup(typeName)
		if obj == nil {
			return fmt.Errorf("type %s not found in package %s", typeName, pkg.PkgPath)
		}
		named, ok := obj.Type().(*types.Named)
		if !ok {
			return fmt.Errorf("%s is not a named type", typeName)
		}

		data := TemplateData{
			Pkg:     pkg.Name,
			PkgPath: pkg.PkgPath,
			Type: TemplateType{
				Name:   typeName,
				GoName: generateGoName(typeName),
			},
		}
		if pkg.PkgPath == dispatchPath {
			data.DispatchQualifier = ""
		} else {
			data.DispatchQualifier = "dispatch."
			data.ImportDispatch = true
		}

		methodSet := types.NewMethodSet(types.NewPointer(named))
		for i := 0; i < methodSet.Len(); i++ {
			fn, ok := methodSet.At(i).Obj().(*types.Func)
			if !ok || !fn.Exported() {
				continue
			}
			method, err := templateMethod(data.Type.GoName, fn, pkg.TypesSizes, qualifier)
			if err != nil {
				if options.Verbose {
					log.Printf("skipping method %s.%s: %s", typeName, fn.Name(), err)
				}
				continue
			}
			data.Type.Methods = append(data.Type.Methods, method)
		}

		sort.Slice(data.Type.Methods, func(i, j int) bool {
			return data.Type.Methods[i].Name < data.Type.Methods[j].Name
		})

		target := path.Join(options.OutputDir, strings.ToLower(typeName)+"_dispatch.go")
		err = ExecuteTemplate(templates, "messenger.tmpl", target, data)
		if err != nil {
			return err
		}
		if options.Verbose {
			log.Printf("wrote %s with %d methods", target, len(data.Type.Methods))
		}
	}

	return nil
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// generateGoName upper-cases the first letter of name and keeps the rest.
func generateGoName(name string) string {
	if len(name) == 0 {
		return name
	}
	return titleCaser.String(name)
}

func isContext(t types.Type) bool {
	named, ok := t.(*types.Named)
	return ok && named.Obj().Pkg() != nil && named.Obj().Pkg().Path() == "context" && named.Obj().Name() == "Context"
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

// isDispatchType reports whether t is the named dispatch type name. The root
// package only aliases the types of its internal package.
func isDispatchType(t types.Type, name string) bool {
	named, ok := t.(*types.Named)
	if !ok || named.Obj().Pkg() == nil || named.Obj().Name() != name {
		return false
	}
	pkgPath := named.Obj().Pkg().Path()
	return pkgPath == dispatchPath || pkgPath == dispatchPath+"/internal"
}

// reservedNames are used by the generated code itself.
var reservedNames = map[string]bool{
	"":          true,
	"_":         true,
	"ctx":       true,
	"messenger": true,
	"result":    true,
	"typed":     true,
	"ok":        true,
	"err":       true,
}

func templateMethod(typeGoName string, fn *types.Func, sizes types.Sizes, qualifier types.Qualifier) (TemplateMethod, error) {
	sig := fn.Type().(*types.Signature)
	if sig.Variadic() {
		return TemplateMethod{}, fmt.Errorf("variadic methods can not be dispatched")
	}

	method := TemplateMethod{
		Name:      fn.Name(),
		Selector:  fn.Name(),
		ConstName: "Selector" + typeGoName + fn.Name(),
	}

	params := sig.Params()
	first := 0
	if params.Len() > first && isContext(params.At(first).Type()) {
		first++
	}
	if params.Len() > first && isDispatchType(params.At(first).Type(), "Selector") {
		first++
	}

	argEncodings := strings.Builder{}
	for i := first; i < params.Len(); i++ {
		param := params.At(i)
		encoding, err := EncodingForType(param.Type(), sizes)
		if err != nil {
			return TemplateMethod{}, err
		}
		argEncodings.WriteString(encoding)

		name := param.Name()
		if reservedNames[name] {
			name = fmt.Sprintf("arg%d", i-first)
		}
		method.Params = append(method.Params, TemplateParam{
			Name: name,
			Type: types.TypeString(param.Type(), qualifier),
		})
	}

	results := sig.Results()
	var result types.Type
	switch results.Len() {
	case 0:
	case 1:
		if !isError(results.At(0).Type()) {
			result = results.At(0).Type()
		}
	case 2:
		if !isError(results.At(1).Type()) {
			return TemplateMethod{}, fmt.Errorf("second result must be an error")
		}
		result = results.At(0).Type()
	default:
		return TemplateMethod{}, fmt.Errorf("too many results")
	}

	returnEncoding := "v"
	if result != nil {
		encoding, err := EncodingForType(result, sizes)
		if err != nil {
			return TemplateMethod{}, err
		}
		returnEncoding = encoding
		method.HasReturn = true
		method.ReturnType = types.TypeString(result, qualifier)
		method.ZeroValue = zeroValue(result, method.ReturnType)
	}

	method.Encoding = returnEncoding + "@:" + argEncodings.String()
	return method, nil
}

// EncodingForType returns the type encoding of a Go type, following the
// mapping the engine uses for reflect types.
func EncodingForType(t types.Type, sizes types.Sizes) (string, error) {
	if isDispatchType(t, "Selector") {
		return ":", nil
	}
	if isDispatchType(t, "Pointer") {
		return "^v", nil
	}

	switch typ := t.Underlying().(type) {
	case *types.Basic:
		switch typ.Kind() {
		case types.Bool:
			return "B", nil
		case types.Int8:
			return "c", nil
		case types.Uint8:
			return "C", nil
		case types.Int16:
			return "s", nil
		case types.Uint16:
			return "S", nil
		case types.Int32:
			return "i", nil
		case types.Uint32:
			return "I", nil
		case types.Int64:
			return "q", nil
		case types.Uint64:
			return "Q", nil
		case types.Int:
			if sizes != nil && sizes.Sizeof(typ) == 4 {
				return "i", nil
			}
			return "q", nil
		case types.Uint:
			if sizes != nil && sizes.Sizeof(typ) == 4 {
				return "I", nil
			}
			return "Q", nil
		case types.Uintptr:
			return "^v", nil
		case types.Float32:
			return "f", nil
		case types.Float64:
			return "d", nil
		case types.String, types.UnsafePointer:
			return "@", nil
		}
		return "", fmt.Errorf("type %s has no encoding", t)
	case *types.Pointer, *types.Interface, *types.Slice, *types.Map, *types.Signature, *types.Chan:
		return "@", nil
	case *types.Array:
		elem, err := EncodingForType(typ.Elem(), sizes)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%d%s]", typ.Len(), elem), nil
	case *types.Struct:
		name := "?"
		if named, ok := t.(*types.Named); ok {
			name = named.Obj().Name()
		}
		sb := strings.Builder{}
		sb.WriteString("{" + name + "=")
		for i := 0; i < typ.NumFields(); i++ {
			if !typ.Field(i).Exported() {
				return "", fmt.Errorf("struct %s has unexported field %s", t, typ.Field(i).Name())
			}
			field, err := EncodingForType(typ.Field(i).Type(), sizes)
			if err != nil {
				return "", err
			}
			sb.WriteString(field)
		}
		sb.WriteString("}")
		return sb.String(), nil
	}

	return "", fmt.Errorf("type %s has no encoding", t)
}

func zeroValue(t types.Type, typeName string) string {
	switch typ := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case typ.Info()&types.IsBoolean != 0:
			return "false"
		case typ.Info()&types.IsString != 0:
			return "\"\""
		case typ.Info()&types.IsNumeric != 0:
			return typeName + "(0)"
		}
		return "nil"
	case *types.Struct, *types.Array:
		return typeName + "{}"
	}
	return "nil"
}

var TemplateFunctions = template.FuncMap{
	"lower": strings.ToLower,
}

func ExecuteTemplate(tmpl *template.Template, name string, path string, data TemplateData) error {
	writer := bytes.NewBuffer(nil)
	err := tmpl.ExecuteTemplate(writer, name, data)
	if err != nil {
		return err
	}

	fileBytes := writer.Bytes()
	formattedSource, err := imports.Process(path, fileBytes, nil)
	if err != nil {
		return fmt.Errorf("could not format %s: %w\nsource:\n%s", name, err, fileBytes)
	}

	return os.WriteFile(path, formattedSource, 0o644)
}

type TemplateData struct {
	Pkg               string
	PkgPath           string
	DispatchQualifier string
	ImportDispatch    bool
	Type              TemplateType
}

type TemplateType struct {
	Name    string
	GoName  string
	Methods []TemplateMethod
}

type TemplateMethod struct {
	Name       string
	Selector   string
	ConstName  string
	Encoding   string
	Params     []TemplateParam
	HasReturn  bool
	ReturnType string
	ZeroValue  string
}

type TemplateParam struct {
	Name string
	Type string
}
