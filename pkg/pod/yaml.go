package pod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// apiVersion is the only apiVersion a /yamlapi/ submission may declare,
// matching KUBE_API_VERSION's single-value check.
const apiVersion = "v1"

// k8sDoc is the generic multi-kind envelope a YAML submission may contain:
// exactly one of a bare Pod or a ReplicationController, optionally paired
// with a Service (currently ignored, as upstream's dispatch does).
type k8sDoc struct {
	Kind       string `json:"kind"`
	APIVersion string `json:"apiVersion"`
	Metadata   struct {
		Name string `json:"name"`
	} `json:"metadata"`
	Spec json.RawMessage `json:"spec"`
}

// yamlContainerSpec is the subset of a k8s PodSpec this endpoint accepts,
// expressed directly in terms of the internal Container/Volume types since
// their JSON shape already matches the Kubernetes container/volume stanza.
type yamlContainerSpec struct {
	Containers    []Container `json:"containers"`
	Volumes       []Volume    `json:"volumes"`
	RestartPolicy string      `json:"restartPolicy"`
	KubeType      int         `json:"kube_type"`
}

type yamlRCSpec struct {
	KubeType int `json:"kube_type"`
	Template struct {
		Spec yamlContainerSpec `json:"spec"`
	} `json:"template"`
}

// CreateFromYAML decodes a raw multi-document YAML submission (a bare Pod,
// or a ReplicationController optionally paired with a Service) into the
// internal PodSpec and creates it the same way as a JSON submission.
func (s *Service) CreateFromYAML(ctx context.Context, ownerID, packageID int, data string) (Pod, error) {
	docs, err := splitYAMLDocuments(data)
	if err != nil {
		return Pod{}, apierr.New(apierr.KindValidationError, fmt.Sprintf("incorrect yaml, parsing failed: %v", err))
	}
	if len(docs) == 0 {
		return Pod{}, apierr.New(apierr.KindValidationError, "no objects found in data")
	}

	var podDoc, rcDoc *k8sDoc
	for _, raw := range docs {
		var d k8sDoc
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return Pod{}, apierr.New(apierr.KindValidationError, fmt.Sprintf("incorrect yaml, parsing failed: %v", err))
		}
		if d.Kind == "" {
			continue
		}
		if d.APIVersion != apiVersion {
			return Pod{}, apierr.New(apierr.KindValidationError, fmt.Sprintf("unsupported apiVersion, must be %s", apiVersion))
		}
		switch d.Kind {
		case "Pod":
			doc := d
			podDoc = &doc
		case "ReplicationController":
			doc := d
			rcDoc = &doc
		case "Service":
			// services are not yet synthesized from a raw submission; the
			// Pod Controller derives its own from container ports.
		default:
			return Pod{}, apierr.New(apierr.KindValidationError, "unsupported object kind: "+d.Kind)
		}
	}

	if podDoc == nil && rcDoc == nil {
		return Pod{}, apierr.New(apierr.KindValidationError, "at least Pod or ReplicationController is needed")
	}
	if podDoc != nil && rcDoc != nil {
		return Pod{}, apierr.New(apierr.KindValidationError, "only one of Pod or ReplicationController is allowed, not both")
	}

	name, body, err := decodePodBody(podDoc, rcDoc)
	if err != nil {
		return Pod{}, err
	}

	spec := Spec{
		Name:          name,
		KubeType:      body.KubeType,
		Containers:    body.Containers,
		Volumes:       body.Volumes,
		RestartPolicy: body.RestartPolicy,
	}
	if spec.RestartPolicy == "" {
		spec.RestartPolicy = "Always"
	}
	for _, c := range spec.Containers {
		for _, p := range c.Ports {
			if p.IsPublic {
				spec.SetPublicIP = true
			}
		}
	}

	return s.Create(ctx, ownerID, packageID, spec)
}

func decodePodBody(podDoc, rcDoc *k8sDoc) (string, yamlContainerSpec, error) {
	if rcDoc != nil {
		var rcSpec yamlRCSpec
		if err := yaml.Unmarshal(rcDoc.Spec, &rcSpec); err != nil {
			return "", yamlContainerSpec{}, apierr.New(apierr.KindValidationError, fmt.Sprintf("invalid ReplicationController spec: %v", err))
		}
		body := rcSpec.Template.Spec
		if body.KubeType == 0 {
			body.KubeType = rcSpec.KubeType
		}
		return rcDoc.Metadata.Name, body, nil
	}

	var body yamlContainerSpec
	if err := yaml.Unmarshal(podDoc.Spec, &body); err != nil {
		return "", yamlContainerSpec{}, apierr.New(apierr.KindValidationError, fmt.Sprintf("invalid Pod spec: %v", err))
	}
	return podDoc.Metadata.Name, body, nil
}

// splitYAMLDocuments breaks a "---"-delimited YAML stream into one
// JSON-convertible byte slice per document.
func splitYAMLDocuments(data string) ([][]byte, error) {
	dec := yamlv3.NewDecoder(strings.NewReader(data))
	var out [][]byte
	for {
		var node yamlv3.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if node.Kind == 0 {
			continue
		}
		raw, err := yamlv3.Marshal(&node)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
