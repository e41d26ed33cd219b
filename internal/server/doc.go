// Package server implements the debugger's TCP text protocol.
//
// Clients send newline-terminated commands with Portuguese names
// (adicionar-ponto-parada, pilha-execucao, proximo, ...) and receive plain
// lines or blocks delimited by "--- <comando>-resposta ---" and
// "--- fim-<comando>-resposta ---". Program output is broadcast to every
// connected client inside a "--- mensagem-saida ---" frame.
//
// Each connection has a reader goroutine, which parses and dispatches its
// commands in order, and a writer goroutine draining a bounded queue. A
// stalled client only fills its own queue; broadcasts to it are dropped
// rather than blocking the engine or other clients.
package server
