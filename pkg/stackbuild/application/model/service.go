package model

type ServiceID = string

type Version = string

type PlatformID = string

type TLSMode = string

const (
	TLSModeCAOnly    TLSMode = "ca-only"
	TLSModeCAAndCert TLSMode = "ca-and-cert"
	TLSModeCertOnly  TLSMode = "cert-only"
)

// Source is either a git source (url/ref) or a local path source,
// never both.
type Source struct {
	URL  string
	Ref  string
	Path string
}

func (s Source) IsPath() bool {
	return s.Path != ""
}

func (s Source) IsGit() bool {
	return !s.IsPath() && (s.URL != "" || s.Ref != "")
}

// CompleteGit reports whether the source fully specifies a git checkout.
func (s Source) CompleteGit() bool {
	return s.URL != "" && s.Ref != ""
}

func (s Source) Type() string {
	if s.IsPath() {
		return "path"
	}
	return "git"
}

type ExternalImage struct {
	Name     string
	Tag      string
	BuildArg string
}

func (i ExternalImage) Reference() string {
	if i.Tag == "" {
		return i.Name
	}
	return i.Name + ":" + i.Tag
}

type Dependency struct {
	Service  ServiceID
	Version  Version
	// SinglePlatform is a tri-state: nil means not declared.
	SinglePlatform *bool
	BuildArg       string
}

func (d Dependency) IsSinglePlatform() bool {
	return d.SinglePlatform != nil && *d.SinglePlatform
}

type TLSConfig struct {
	Enabled  bool
	Mode     TLSMode
	CertName string
}

// Overrides is a partial configuration fragment. Pointer scalars
// distinguish "absent" from "present but empty".
type Overrides struct {
	Context        *string
	Dockerfile     *string
	Sources        map[string]Source
	ExternalImages map[string]ExternalImage
	Dependencies   map[string]Dependency
	TLS            *TLSConfig
	Platforms      map[PlatformID]Overrides
}

// ServiceConfig is the base configuration document of one service.
type ServiceConfig struct {
	Name           ServiceID
	Context        string
	Dockerfile     string
	Sources        map[string]Source
	ExternalImages map[string]ExternalImage
	Dependencies   map[string]Dependency
	TLS            *TLSConfig
}

// MergedConfig is the fully composed configuration of one build node.
type MergedConfig struct {
	Name           ServiceID
	Context        string
	Dockerfile     string
	Sources        map[string]Source
	ExternalImages map[string]ExternalImage
	Dependencies   map[string]Dependency
	TLS            *TLSConfig
}
