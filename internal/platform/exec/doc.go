// Package exec runs commands and writes files on the node being bootstrapped.
//
// Runner is implemented by LocalRunner, which uses the local shell, and by
// SSHRunner, which runs the same commands on a remote host over SSH.
// Collaborators (containerd, kubeadm, systemd units) depend only on Runner,
// so the same phase actions bootstrap the local machine or a remote one.
//
// MockRunner records commands and returns scripted output for tests.
package exec
