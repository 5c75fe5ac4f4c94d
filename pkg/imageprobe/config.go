package imageprobe

// EnvVar is a single NAME=value pair from the image's default environment.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExposedPort is a port the image declares itself, e.g. "80/tcp".
type ExposedPort struct {
	Number   int    `json:"number"`
	Protocol string `json:"protocol"`
}

// ContainerConfig is the simplified, decoded image configuration the pod
// controller reads to fill in gaps a user's container spec left blank.
type ContainerConfig struct {
	Image        string        `json:"image"`
	SourceURL    string        `json:"sourceUrl"`
	Command      []string      `json:"command"`
	Args         []string      `json:"args"`
	Env          []EnvVar      `json:"env"`
	Ports        []ExposedPort `json:"ports"`
	VolumeMounts []string      `json:"volumeMounts"`
	WorkingDir   string        `json:"workingDir"`
	Secret       *Credentials  `json:"secret,omitempty"`
}

// HasCommand reports whether the image itself provides a CMD or
// ENTRYPOINT, used to enforce the "container must have a runnable
// command from somewhere" invariant.
func (c ContainerConfig) HasCommand() bool {
	return len(c.Command) > 0 || len(c.Args) > 0
}

// rawImageConfig is the Docker image config JSON shape shared by the v1
// `images/<id>/json` response and the v2 manifest's
// `history[0].v1Compatibility` blob.
type rawImageConfig struct {
	Config struct {
		Entrypoint []string          `json:"Entrypoint"`
		Cmd        []string          `json:"Cmd"`
		Env        []string          `json:"Env"`
		ExposedPorts map[string]struct{} `json:"ExposedPorts"`
		Volumes      map[string]struct{} `json:"Volumes"`
		WorkingDir   string              `json:"WorkingDir"`
	} `json:"config"`
}
