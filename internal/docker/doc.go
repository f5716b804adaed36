// Package docker talks to the container runtime on behalf of devstack.
//
// It covers two jobs:
//   - listing running containers and the host ports they publish, either
//     through the Docker Engine SDK (SDKLister) or by parsing `docker ps`
//     output (CLILister), for the port probe
//   - bringing a project's compose stack up and down (Compose)
//
// The SDK client negotiates the API version with the daemon, so it works
// against older and newer Docker engines alike.
package docker
