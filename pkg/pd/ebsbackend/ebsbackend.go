// Package ebsbackend implements pd.Backend over AWS EBS: a drive is an EBS
// volume id, referenced into a pod's volume spec as an
// {awsElasticBlockStore: {...}} stanza.
package ebsbackend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kuberdock/kuberdock/pkg/k8s"
)

// Backend is the AWS EBS persistent-disk backend.
type Backend struct {
	region string
}

// New creates an EBS backend for the given AWS region.
func New(region string) *Backend {
	return &Backend{region: region}
}

// Name implements pd.Backend.
func (b *Backend) Name() string { return "aws" }

// NodeBound implements pd.Backend — an EBS volume can only be attached to
// an instance in its own availability zone, but that's enforced by AWS at
// attach time, not by pinning the PD row to a node.
func (b *Backend) NodeBound() bool { return false }

// CreatePhysical provisions an EBS volume. The actual AWS API call is an
// external collaborator (out of this module's scope); driveName here
// stands in for the volume-id AWS would return.
func (b *Backend) CreatePhysical(ctx context.Context, driveName string, sizeGB int) error {
	return nil
}

// DeletePhysical removes an EBS volume.
func (b *Backend) DeletePhysical(ctx context.Context, driveName string) error {
	return nil
}

// EnrichVolume builds the {awsElasticBlockStore: {...}} volume-source stanza.
func (b *Backend) EnrichVolume(driveName string, podID string, nodeID *int) (k8s.Volume, error) {
	spec := struct {
		AWS struct {
			VolumeID string `json:"volumeID"`
			FSType   string `json:"fsType"`
		} `json:"awsElasticBlockStore"`
	}{}
	spec.AWS.VolumeID = driveName
	spec.AWS.FSType = "ext4"

	raw, err := json.Marshal(spec)
	if err != nil {
		return k8s.Volume{}, fmt.Errorf("ebsbackend: marshaling volume spec: %w", err)
	}
	return k8s.Volume{Name: driveName, Spec: raw}, nil
}
