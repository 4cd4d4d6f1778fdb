// Package tools provides the gateway's builtin tool packs.
//
// # Packs
//
//	builtin:filesystem - filesystem_create_directory, filesystem_write_file,
//	                     filesystem_read_file, filesystem_list_directory
//	builtin:shell      - execute_shell_command
//
// Every path is resolved through a Sandbox rooted at tools.base_dir. Absolute
// paths, dot-dot escapes and symlinks leading outside the root are rejected
// with ErrPathTraversal.
//
// # Shell
//
// execute_shell_command is listed but refuses to run unless tools.allow_shell
// is set. Commands longer than 4096 bytes or containing newlines, ';', '&&',
// '||', backticks, '$(', '<(', pipes or redirection are rejected before a
// process is started. A command that exits non-zero fails with a CommandError
// whose message carries the captured output.
//
// # Authorization
//
// Tools use the function resource type with the tool name as resource id:
// create_directory needs create, write_file needs update, read and list need
// read, and the shell needs execute.
package tools
