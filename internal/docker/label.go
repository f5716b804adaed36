package docker

// LabelComposeProject is the label Docker Compose puts on every container
// it creates, holding the compose project name. devstack sets that name to
// the project ID with `docker compose -p` and reads it back to tell which
// project a running container belongs to. devstack writes no labels of
// its own.
const LabelComposeProject = "com.docker.compose.project"

// composeProject returns the compose project recorded in labels, or "".
func composeProject(labels map[string]string) string {
	return labels[LabelComposeProject]
}
